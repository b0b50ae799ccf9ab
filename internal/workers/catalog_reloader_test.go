package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanna/internal/domain/chain"
	"vanna/pkg/errors"
)

type stubCatalogSource struct {
	instruments []chain.Instrument
	err         error
}

func (s *stubCatalogSource) FetchInstruments(ctx context.Context) ([]chain.Instrument, error) {
	return s.instruments, s.err
}

type stubSubscriber struct {
	tokens []string
	err    error
}

func (s *stubSubscriber) SetTokens(tokens []string) error {
	s.tokens = tokens
	return s.err
}

func TestCatalogReloadWorker_Run(t *testing.T) {
	source := &stubCatalogSource{instruments: []chain.Instrument{
		{Underlying: "NIFTY", Expiry: "2026-09-03", Strike: 24500, Side: chain.SideCall, Token: "43001"},
		{Underlying: "NIFTY", Expiry: "2026-09-03", Strike: 24500, Side: chain.SidePut, Token: "43002"},
	}}
	catalog := chain.NewCatalog(source)
	feed := &stubSubscriber{}

	worker := NewCatalogReloadWorker(catalog, feed, time.Hour)
	require.NoError(t, worker.Run(context.Background()))

	assert.ElementsMatch(t, []string{"43001", "43002"}, feed.tokens)
	assert.Equal(t, "catalog_reloader", worker.Name())
	assert.Equal(t, time.Hour, worker.Interval())

	health := worker.Health()
	assert.Equal(t, int64(1), health.RunCount)
	assert.Equal(t, int64(0), health.ErrorCount)
}

func TestCatalogReloadWorker_LoadFailure(t *testing.T) {
	source := &stubCatalogSource{err: errors.New("download failed")}
	catalog := chain.NewCatalog(source)
	feed := &stubSubscriber{}

	worker := NewCatalogReloadWorker(catalog, feed, time.Hour)
	err := worker.Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrCatalogLoad)
	assert.Nil(t, feed.tokens)

	health := worker.Health()
	assert.Equal(t, int64(1), health.ErrorCount)
}

func TestCatalogReloadWorker_NilFeed(t *testing.T) {
	source := &stubCatalogSource{instruments: []chain.Instrument{
		{Underlying: "NIFTY", Expiry: "2026-09-03", Strike: 24500, Side: chain.SideCall, Token: "43001"},
	}}
	catalog := chain.NewCatalog(source)

	worker := NewCatalogReloadWorker(catalog, nil, time.Hour)
	assert.NoError(t, worker.Run(context.Background()))
}
