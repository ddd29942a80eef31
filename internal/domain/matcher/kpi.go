package matcher

import "github.com/shopspring/decimal"

var daysPerYear = decimal.NewFromInt(365)

// CalculateDSO returns Days Sales Outstanding: open / total * 365.
// Rows with unparseable amounts are ignored; a zero total yields 0.
func CalculateDSO(invoices []Invoice) float64 {
	open, total := sums(invoices)
	if total.IsZero() {
		return 0
	}
	dso, _ := open.Div(total).Mul(daysPerYear).Float64()
	return dso
}

// TotalOutstanding sums the amounts of open invoices
func TotalOutstanding(invoices []Invoice) decimal.Decimal {
	open, _ := sums(invoices)
	return open
}

func sums(invoices []Invoice) (open, total decimal.Decimal) {
	for _, inv := range invoices {
		amount, err := parseAmount(inv.Amount)
		if err != nil {
			continue
		}
		total = total.Add(amount)
		if inv.IsOpen() {
			open = open.Add(amount)
		}
	}
	return open, total
}
