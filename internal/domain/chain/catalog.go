package chain

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"vanna/pkg/errors"
	"vanna/pkg/logger"
)

// CatalogSource fetches the full instrument reference dump from the broker.
// Implemented by the Angel One adapter; faked in tests.
type CatalogSource interface {
	FetchInstruments(ctx context.Context) ([]Instrument, error)
}

// StrikePair holds the call and put legs listed at one strike. Either side
// may be nil when the exchange lists only one leg.
type StrikePair struct {
	Call *Instrument
	Put  *Instrument
}

// catalogIndex is one immutable generation of the catalog. Readers always see
// either the previous complete index or the new one, never a half-built map.
type catalogIndex struct {
	// series[underlying][expiry][strike]
	series map[string]map[string]map[float64]*StrikePair
	tokens []string
	built  time.Time
}

// Catalog is the static (underlying, expiry, strike) → instrument lookup.
// Load replaces the whole index atomically; all read paths are lock-free.
type Catalog struct {
	source CatalogSource
	idx    atomic.Pointer[catalogIndex]
	log    *logger.Logger
}

// NewCatalog creates an empty catalog backed by the given source
func NewCatalog(source CatalogSource) *Catalog {
	c := &Catalog{
		source: source,
		log:    logger.Get().With("component", "catalog"),
	}
	c.idx.Store(&catalogIndex{series: map[string]map[string]map[float64]*StrikePair{}})
	return c
}

// Load fetches the instrument dump and swaps in a freshly built index.
// On failure the previous index stays in place untouched.
func (c *Catalog) Load(ctx context.Context) error {
	instruments, err := c.source.FetchInstruments(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCatalogLoad, err.Error())
	}
	if len(instruments) == 0 {
		return errors.Wrap(errors.ErrCatalogLoad, "instrument dump is empty")
	}

	idx := &catalogIndex{
		series: make(map[string]map[string]map[float64]*StrikePair),
		built:  time.Now(),
	}

	for i := range instruments {
		inst := instruments[i]

		expiries, ok := idx.series[inst.Underlying]
		if !ok {
			expiries = make(map[string]map[float64]*StrikePair)
			idx.series[inst.Underlying] = expiries
		}
		strikes, ok := expiries[inst.Expiry]
		if !ok {
			strikes = make(map[float64]*StrikePair)
			expiries[inst.Expiry] = strikes
		}
		pair, ok := strikes[inst.Strike]
		if !ok {
			pair = &StrikePair{}
			strikes[inst.Strike] = pair
		}

		switch inst.Side {
		case SideCall:
			pair.Call = &inst
		case SidePut:
			pair.Put = &inst
		}
		idx.tokens = append(idx.tokens, inst.Token)
	}

	c.idx.Store(idx)
	c.log.Infow("Instrument catalog loaded",
		"instruments", len(instruments),
		"underlyings", len(idx.series),
	)
	return nil
}

// Lookup returns the call/put legs listed at (underlying, expiry, strike)
func (c *Catalog) Lookup(underlying, expiry string, strike float64) (*StrikePair, error) {
	strikes, err := c.ladder(underlying, expiry)
	if err != nil {
		return nil, err
	}
	pair, ok := strikes[strike]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "strike %v not listed for %s %s", strike, underlying, expiry)
	}
	return pair, nil
}

// Ladder returns the strike ladder for (underlying, expiry) in ascending
// strike order.
func (c *Catalog) Ladder(underlying, expiry string) ([]float64, map[float64]*StrikePair, error) {
	strikes, err := c.ladder(underlying, expiry)
	if err != nil {
		return nil, nil, err
	}

	sorted := make([]float64, 0, len(strikes))
	for k := range strikes {
		sorted = append(sorted, k)
	}
	sort.Float64s(sorted)
	return sorted, strikes, nil
}

func (c *Catalog) ladder(underlying, expiry string) (map[float64]*StrikePair, error) {
	expiries, ok := c.idx.Load().series[underlying]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownSeries, "underlying %s", underlying)
	}
	strikes, ok := expiries[expiry]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownSeries, "%s expiry %s", underlying, expiry)
	}
	return strikes, nil
}

// NextExpiry returns the earliest listed expiry on or after today for the
// underlying. Expiries are compared as calendar dates, not timestamps.
func (c *Catalog) NextExpiry(underlying string, today time.Time) (string, error) {
	expiries, ok := c.idx.Load().series[underlying]
	if !ok {
		return "", errors.Wrapf(errors.ErrUnknownSeries, "underlying %s", underlying)
	}

	cutoff := today.Format("2006-01-02")

	best := ""
	for expiry := range expiries {
		if _, err := time.Parse("2006-01-02", expiry); err != nil {
			continue
		}
		if expiry < cutoff {
			continue
		}
		if best == "" || expiry < best {
			best = expiry
		}
	}

	if best == "" {
		return "", errors.Wrapf(errors.ErrNoExpiryAvailable, "underlying %s", underlying)
	}
	return best, nil
}

// Underlyings returns the underlyings present in the current index
func (c *Catalog) Underlyings() []string {
	series := c.idx.Load().series
	out := make([]string, 0, len(series))
	for u := range series {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Tokens returns every instrument token in the current index, for feed
// subscription.
func (c *Catalog) Tokens() []string {
	idx := c.idx.Load()
	out := make([]string, len(idx.tokens))
	copy(out, idx.tokens)
	return out
}
