package matcher

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalColumn(t *testing.T) {
	tests := map[string]string{
		"Invoice_ID":      ColumnID,
		"id":              ColumnID,
		"Customer_Name":   ColumnCustomer,
		"Customer":        ColumnCustomer,
		" Amount ":        ColumnAmount,
		"CCY":             ColumnCurrency,
		"ESG_Score":       ColumnESG,
		"Status":          ColumnStatus,
		"Days_Overdue":    "",
		"Shipping Region": "",
	}

	for header, want := range tests {
		assert.Equal(t, want, CanonicalColumn(header), "header %q", header)
	}
}

func TestRunMatchRecords_HeterogeneousHeaders(t *testing.T) {
	// Arrange
	m := newTestMatcher()
	records := []Record{
		{"Invoice_ID": "INV-001", "Customer": "Tesla Inc", "Amount": "50000.00", "Currency": "USD", "ESG_Score": "AA", "Days_Overdue": "12"},
		{"Invoice_ID": "INV-002", "Customer": "Global Blue SE", "Amount": "1500.00", "Currency": "EUR"},
	}

	// Act
	candidates, err := m.RunMatchRecords(pay("50000.00", "USD", "tsla motors gmbh"), records)

	// Assert
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "INV-001", candidates[0].InvoiceID)
	assert.Equal(t, "AA", candidates[0].ESGScore)
	assert.Equal(t, TierAutoPost, candidates[0].Tier)
}

func TestRunMatchRecords_MissingRequiredColumn(t *testing.T) {
	m := newTestMatcher()
	records := []Record{
		{"Invoice_ID": "INV-001", "Customer": "Tesla Inc", "Amount": "50000.00", "Currency": "USD"},
		{"Invoice_ID": "INV-002", "Customer": "Global Blue SE", "Amount": "1500.00"},
	}

	candidates, err := m.RunMatchRecords(pay("50000.00", "USD", "Tesla Inc"), records)

	require.NoError(t, err)
	assert.NotNil(t, candidates)
	assert.Empty(t, candidates)
}

func TestRunMatchRecords_ValidatesPaymentFirst(t *testing.T) {
	m := newTestMatcher()

	_, err := m.RunMatchRecords(Payment{Currency: "USD"}, []Record{{"id": "X"}})

	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInvoicesFromRecords_Empty(t *testing.T) {
	invoices, ok := InvoicesFromRecords(nil)

	assert.True(t, ok)
	assert.Empty(t, invoices)
}

func TestInvoicesFromRecords_TrimsID(t *testing.T) {
	invoices, ok := InvoicesFromRecords([]Record{
		{"Invoice_ID": " INV-1\t", "Customer": "Acme Corp", "Amount": "100.00", "Currency": "USD"},
	})

	require.True(t, ok)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-1", invoices[0].ID)
}

func TestCalculateDSO(t *testing.T) {
	invoices := []Invoice{
		{ID: "1", Amount: "100.00", Status: "Open"},
		{ID: "2", Amount: "300.00", Status: "Paid"},
		{ID: "3", Amount: "garbage", Status: "Open"},
	}

	assert.InDelta(t, 91.25, CalculateDSO(invoices), 0.0001)
	assert.True(t, decimal.RequireFromString("100").Equal(TotalOutstanding(invoices)))
}

func TestCalculateDSO_NoInvoices(t *testing.T) {
	assert.Equal(t, 0.0, CalculateDSO(nil))
	assert.True(t, TotalOutstanding(nil).IsZero())
}
