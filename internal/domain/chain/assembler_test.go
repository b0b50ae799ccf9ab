package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanna/pkg/errors"
)

const spotToken = "99926000"

type fakeQuotes struct {
	ticks map[string]Tick
	calls []string
}

func (f *fakeQuotes) FetchQuote(ctx context.Context, token string) (Tick, error) {
	f.calls = append(f.calls, token)
	tick, ok := f.ticks[token]
	if !ok {
		return Tick{}, errors.Wrapf(errors.ErrUnavailable, "token %s", token)
	}
	return tick, nil
}

func testAssembler(t *testing.T, quotes QuoteFetcher) (*Assembler, *MemoryTickStore) {
	t.Helper()

	catalog := NewCatalog(&fakeSource{instruments: niftyInstruments()})
	require.NoError(t, catalog.Load(context.Background()))

	store := NewMemoryTickStore(10 * time.Second)
	a := NewAssembler(catalog, store, quotes, NewStaticProvider(), map[string]string{"NIFTY": spotToken})
	a.now = func() time.Time {
		return time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	}
	return a, store
}

func TestAssemble_FullChain(t *testing.T) {
	a, store := testAssembler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Tick{Token: "43001", LTP: 118.5, OI: 200, Volume: 900, IV: 14.2}))
	require.NoError(t, store.Put(ctx, Tick{Token: "43002", LTP: 96.0, OI: 300, Volume: 700, IV: 15.1}))
	require.NoError(t, store.Put(ctx, Tick{Token: "43003", LTP: 70.0, OI: 100, Volume: 400, IV: 13.8}))
	require.NoError(t, store.Put(ctx, Tick{Token: spotToken, LTP: 24550.0}))

	snapshot, err := a.Assemble(ctx, "NIFTY")
	require.NoError(t, err)

	assert.Equal(t, "NIFTY", snapshot.Symbol)
	assert.Equal(t, "2026-09-03", snapshot.Expiry)
	assert.Equal(t, 24550.0, snapshot.SpotPrice)
	require.Len(t, snapshot.Rows, 2)

	row := snapshot.Rows[0]
	assert.Equal(t, 24500.0, row.Strike)
	require.NotNil(t, row.Call)
	require.NotNil(t, row.Put)
	assert.Equal(t, 118.5, row.Call.LTP)
	assert.Equal(t, int64(300), row.Put.OI)

	assert.Equal(t, int64(300), snapshot.TotalCallOI)
	assert.Equal(t, int64(300), snapshot.TotalPutOI)
	assert.Equal(t, 1.0, snapshot.PutCallRatio)
	assert.Equal(t, 24500.0, snapshot.MaxPainStrike)
}

func TestAssemble_MissingTickYieldsOneSidedRow(t *testing.T) {
	a, store := testAssembler(t, nil)
	ctx := context.Background()

	// Only the call leg of 24500 has a live tick
	require.NoError(t, store.Put(ctx, Tick{Token: "43001", LTP: 118.5, OI: 200}))
	require.NoError(t, store.Put(ctx, Tick{Token: spotToken, LTP: 24550.0}))

	snapshot, err := a.Assemble(ctx, "NIFTY")
	require.NoError(t, err)

	row := snapshot.Rows[0]
	require.NotNil(t, row.Call)
	assert.Nil(t, row.Put)

	// 24600 has no ticks at all: the row survives with both sides absent
	assert.Nil(t, snapshot.Rows[1].Call)
	assert.Nil(t, snapshot.Rows[1].Put)
}

func TestAssemble_QuoteFallbackOnMiss(t *testing.T) {
	quotes := &fakeQuotes{ticks: map[string]Tick{
		"43002":   {Token: "43002", LTP: 96.0, OI: 300},
		spotToken: {Token: spotToken, LTP: 24550.0},
	}}
	a, store := testAssembler(t, quotes)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Tick{Token: "43001", LTP: 118.5, OI: 200}))

	snapshot, err := a.Assemble(ctx, "NIFTY")
	require.NoError(t, err)

	row := snapshot.Rows[0]
	require.NotNil(t, row.Put)
	assert.Equal(t, 96.0, row.Put.LTP)

	// The cached call leg never hit the REST path
	assert.NotContains(t, quotes.calls, "43001")
	assert.Contains(t, quotes.calls, "43002")
}

func TestAssemble_UnknownUnderlying(t *testing.T) {
	a, _ := testAssembler(t, nil)

	_, err := a.Assemble(context.Background(), "FINNIFTY")
	assert.ErrorIs(t, err, errors.ErrUnknownSeries)
}

func TestAssemble_NoSpotPrice(t *testing.T) {
	a, store := testAssembler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Tick{Token: "43001", LTP: 118.5, OI: 200}))

	_, err := a.Assemble(ctx, "NIFTY")
	assert.ErrorIs(t, err, errors.ErrNoSpotPrice)
}

func TestAssemble_SpotCarryForward(t *testing.T) {
	a, store := testAssembler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Tick{Token: spotToken, LTP: 24550.0}))

	spot, err := a.Spot(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 24550.0, spot)

	// Spot tick expires: the previous value carries the snapshot
	store.now = func() time.Time { return time.Now().Add(time.Minute) }

	spot, err = a.Spot(ctx, "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, 24550.0, spot)
}

func TestAssemble_PricingFillsMissingIVAndGamma(t *testing.T) {
	a, store := testAssembler(t, nil)
	ctx := context.Background()

	// Feed tick with no IV or gamma
	require.NoError(t, store.Put(ctx, Tick{Token: "43001", LTP: 118.5, OI: 200}))
	require.NoError(t, store.Put(ctx, Tick{Token: spotToken, LTP: 24550.0}))

	snapshot, err := a.Assemble(ctx, "NIFTY")
	require.NoError(t, err)

	row := snapshot.Rows[0]
	require.NotNil(t, row.Call)
	assert.Equal(t, 15.0, row.Call.IV)
	assert.Equal(t, 0.001, row.Call.Gamma)
}

func TestAssemble_FeedValuesWinOverPricing(t *testing.T) {
	a, store := testAssembler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Tick{Token: "43001", LTP: 118.5, OI: 200, IV: 14.2, Gamma: 0.0025}))
	require.NoError(t, store.Put(ctx, Tick{Token: spotToken, LTP: 24550.0}))

	snapshot, err := a.Assemble(ctx, "NIFTY")
	require.NoError(t, err)

	row := snapshot.Rows[0]
	assert.Equal(t, 14.2, row.Call.IV)
	assert.Equal(t, 0.0025, row.Call.Gamma)
}
