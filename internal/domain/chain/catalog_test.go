package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanna/pkg/errors"
)

type fakeSource struct {
	instruments []Instrument
	err         error
	calls       int
}

func (f *fakeSource) FetchInstruments(ctx context.Context) ([]Instrument, error) {
	f.calls++
	return f.instruments, f.err
}

func niftyInstruments() []Instrument {
	return []Instrument{
		{Underlying: "NIFTY", Expiry: "2026-09-03", Strike: 24500, Side: SideCall, Token: "43001", Symbol: "NIFTY03SEP2624500CE"},
		{Underlying: "NIFTY", Expiry: "2026-09-03", Strike: 24500, Side: SidePut, Token: "43002", Symbol: "NIFTY03SEP2624500PE"},
		{Underlying: "NIFTY", Expiry: "2026-09-03", Strike: 24600, Side: SideCall, Token: "43003", Symbol: "NIFTY03SEP2624600CE"},
		{Underlying: "NIFTY", Expiry: "2026-09-10", Strike: 24500, Side: SideCall, Token: "43010", Symbol: "NIFTY10SEP2624500CE"},
		{Underlying: "BANKNIFTY", Expiry: "2026-09-24", Strike: 52000, Side: SidePut, Token: "44001", Symbol: "BANKNIFTY24SEP2652000PE"},
	}
}

func loadedCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog := NewCatalog(&fakeSource{instruments: niftyInstruments()})
	require.NoError(t, catalog.Load(context.Background()))
	return catalog
}

func TestCatalog_Lookup(t *testing.T) {
	catalog := loadedCatalog(t)

	pair, err := catalog.Lookup("NIFTY", "2026-09-03", 24500)
	require.NoError(t, err)
	require.NotNil(t, pair.Call)
	require.NotNil(t, pair.Put)
	assert.Equal(t, "43001", pair.Call.Token)
	assert.Equal(t, "43002", pair.Put.Token)

	// One-sided listing keeps the missing leg nil
	pair, err = catalog.Lookup("NIFTY", "2026-09-03", 24600)
	require.NoError(t, err)
	require.NotNil(t, pair.Call)
	assert.Nil(t, pair.Put)
}

func TestCatalog_LookupUnknown(t *testing.T) {
	catalog := loadedCatalog(t)

	_, err := catalog.Lookup("FINNIFTY", "2026-09-03", 24500)
	assert.ErrorIs(t, err, errors.ErrUnknownSeries)

	_, err = catalog.Lookup("NIFTY", "2099-01-01", 24500)
	assert.ErrorIs(t, err, errors.ErrUnknownSeries)

	_, err = catalog.Lookup("NIFTY", "2026-09-03", 11111)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCatalog_LadderSorted(t *testing.T) {
	catalog := loadedCatalog(t)

	strikes, ladder, err := catalog.Ladder("NIFTY", "2026-09-03")
	require.NoError(t, err)
	assert.Equal(t, []float64{24500, 24600}, strikes)
	assert.Len(t, ladder, 2)
}

func TestCatalog_NextExpiry(t *testing.T) {
	catalog := loadedCatalog(t)

	day := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}

	expiry, err := catalog.NextExpiry("NIFTY", day("2026-09-01"))
	require.NoError(t, err)
	assert.Equal(t, "2026-09-03", expiry)

	// Expiry day itself still selects that expiry
	expiry, err = catalog.NextExpiry("NIFTY", day("2026-09-03"))
	require.NoError(t, err)
	assert.Equal(t, "2026-09-03", expiry)

	// Past the near expiry the next series takes over
	expiry, err = catalog.NextExpiry("NIFTY", day("2026-09-04"))
	require.NoError(t, err)
	assert.Equal(t, "2026-09-10", expiry)

	_, err = catalog.NextExpiry("NIFTY", day("2026-10-01"))
	assert.ErrorIs(t, err, errors.ErrNoExpiryAvailable)

	_, err = catalog.NextExpiry("FINNIFTY", day("2026-09-01"))
	assert.ErrorIs(t, err, errors.ErrUnknownSeries)
}

func TestCatalog_LoadFailureKeepsOldIndex(t *testing.T) {
	source := &fakeSource{instruments: niftyInstruments()}
	catalog := NewCatalog(source)
	require.NoError(t, catalog.Load(context.Background()))

	source.err = errors.New("scrip master download failed")
	err := catalog.Load(context.Background())
	assert.ErrorIs(t, err, errors.ErrCatalogLoad)

	// Previous generation still answers lookups
	pair, err := catalog.Lookup("NIFTY", "2026-09-03", 24500)
	require.NoError(t, err)
	assert.Equal(t, "43001", pair.Call.Token)
}

func TestCatalog_LoadRejectsEmptyDump(t *testing.T) {
	catalog := NewCatalog(&fakeSource{})
	err := catalog.Load(context.Background())
	assert.ErrorIs(t, err, errors.ErrCatalogLoad)
}

func TestCatalog_ReloadSwapsIndex(t *testing.T) {
	source := &fakeSource{instruments: niftyInstruments()}
	catalog := NewCatalog(source)
	require.NoError(t, catalog.Load(context.Background()))

	source.instruments = []Instrument{
		{Underlying: "NIFTY", Expiry: "2026-09-10", Strike: 25000, Side: SideCall, Token: "43099"},
	}
	require.NoError(t, catalog.Load(context.Background()))

	_, err := catalog.Lookup("NIFTY", "2026-09-03", 24500)
	assert.ErrorIs(t, err, errors.ErrUnknownSeries)

	assert.Equal(t, []string{"43099"}, catalog.Tokens())
	assert.Equal(t, []string{"NIFTY"}, catalog.Underlyings())
}

func TestCatalog_Tokens(t *testing.T) {
	catalog := loadedCatalog(t)
	assert.ElementsMatch(t,
		[]string{"43001", "43002", "43003", "43010", "44001"},
		catalog.Tokens(),
	)
}
