package workers

import (
	"context"
	"time"

	"vanna/internal/domain/chain"
	"vanna/pkg/errors"
)

// TokenSubscriber receives the refreshed token universe after a catalog
// reload so the push feed can resubscribe to new contracts.
type TokenSubscriber interface {
	SetTokens(tokens []string) error
}

// CatalogReloadWorker refreshes the instrument catalog from the scrip
// master dump. Contracts roll daily, so the catalog built at boot goes
// stale after expiry days.
type CatalogReloadWorker struct {
	*BaseWorker
	catalog *chain.Catalog
	feed    TokenSubscriber
}

// NewCatalogReloadWorker creates the reload worker. feed may be nil when
// the push feed is disabled.
func NewCatalogReloadWorker(catalog *chain.Catalog, feed TokenSubscriber, interval time.Duration) *CatalogReloadWorker {
	return &CatalogReloadWorker{
		BaseWorker: NewBaseWorker("catalog_reloader", interval, true),
		catalog:    catalog,
		feed:       feed,
	}
}

// Run reloads the catalog and pushes the new token set to the feed.
// A failed reload keeps the previous catalog generation in place.
func (w *CatalogReloadWorker) Run(ctx context.Context) error {
	start := time.Now()

	if err := w.catalog.Load(ctx); err != nil {
		w.RecordError(err, time.Since(start))
		return errors.Wrap(err, "catalog reload failed")
	}

	tokens := w.catalog.Tokens()
	w.Log().Infow("Catalog reloaded", "tokens", len(tokens))

	if w.feed != nil {
		if err := w.feed.SetTokens(tokens); err != nil {
			w.RecordError(err, time.Since(start))
			return errors.Wrap(err, "feed resubscribe after catalog reload failed")
		}
	}

	w.RecordRun(time.Since(start))
	return nil
}
