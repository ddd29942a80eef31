package cli

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/eshaffer321/smartcash-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/alias"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/config"
)

// RematchOnReload installs each reloaded alias table into svc and re-scores
// the review and unmatched payments of result, printing what changed to w.
// The returned wait blocks until an in-flight rematch has finished.
func RematchOnReload(ctx context.Context, loader *config.AliasLoader, svc *reconcile.Service, result *reconcile.BatchResult, w io.Writer, logger *slog.Logger) (wait func()) {
	var mu sync.Mutex
	loader.OnChange(func(r *alias.Resolver) {
		mu.Lock()
		defer mu.Unlock()

		svc.SwapResolver(r)
		if ctx.Err() != nil {
			return
		}
		changed, err := svc.Rematch(ctx, result)
		if err != nil {
			logger.Warn("Rematch after alias reload stopped", slog.String("error", err.Error()))
		}
		PrintRematch(w, changed, result)
	})

	return func() {
		mu.Lock()
		defer mu.Unlock()
	}
}
