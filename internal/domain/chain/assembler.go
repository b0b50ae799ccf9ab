package chain

import (
	"context"
	"sync"
	"time"

	"vanna/pkg/errors"
	"vanna/pkg/logger"
)

// QuoteFetcher is the REST point-query collaborator used as the cache-miss
// fallback. Implementations must bound their own timeout so a scheduler tick
// never blocks on a dead broker.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, token string) (Tick, error)
}

// Assembler joins the catalog's strike ladder against the tick store and
// produces immutable chain snapshots.
type Assembler struct {
	catalog    *Catalog
	store      TickStore
	quotes     QuoteFetcher // optional; nil disables the REST fallback
	pricing    PricingProvider
	spotTokens map[string]string // underlying → index instrument token

	mu       sync.RWMutex
	lastSpot map[string]float64

	now func() time.Time
	log *logger.Logger
}

// NewAssembler creates a chain assembler
func NewAssembler(catalog *Catalog, store TickStore, quotes QuoteFetcher, pricing PricingProvider, spotTokens map[string]string) *Assembler {
	if pricing == nil {
		pricing = NoopProvider{}
	}
	return &Assembler{
		catalog:    catalog,
		store:      store,
		quotes:     quotes,
		pricing:    pricing,
		spotTokens: spotTokens,
		lastSpot:   make(map[string]float64),
		now:        time.Now,
		log:        logger.Get().With("component", "assembler"),
	}
}

// Assemble builds a snapshot for the underlying's nearest expiry. Missing or
// stale legs yield one-sided rows rather than a failed assembly; only an
// unknown series or an unresolvable spot price aborts the snapshot.
func (a *Assembler) Assemble(ctx context.Context, underlying string) (*ChainSnapshot, error) {
	expiry, err := a.catalog.NextExpiry(underlying, a.now())
	if err != nil {
		return nil, err
	}
	return a.AssembleExpiry(ctx, underlying, expiry)
}

// AssembleExpiry builds a snapshot for one specific (underlying, expiry)
func (a *Assembler) AssembleExpiry(ctx context.Context, underlying, expiry string) (*ChainSnapshot, error) {
	strikes, ladder, err := a.catalog.Ladder(underlying, expiry)
	if err != nil {
		return nil, err
	}

	rows := make([]ChainRow, 0, len(strikes))
	for _, strike := range strikes {
		pair := ladder[strike]
		row := ChainRow{Strike: strike}
		row.Call = a.legQuote(ctx, pair.Call)
		row.Put = a.legQuote(ctx, pair.Put)
		rows = append(rows, row)
	}

	spot, err := a.spotPrice(ctx, underlying)
	if err != nil {
		return nil, err
	}

	callOI, putOI := TotalOpenInterest(rows)

	return &ChainSnapshot{
		Symbol:        underlying,
		Expiry:        expiry,
		SpotPrice:     spot,
		Timestamp:     a.now(),
		Rows:          rows,
		PutCallRatio:  PutCallRatio(rows),
		GammaExposure: GammaExposure(rows, spot),
		MaxPainStrike: MaxPain(rows, strikes),
		TotalCallOI:   callOI,
		TotalPutOI:    putOI,
	}, nil
}

// legQuote resolves one leg. Cache miss falls back to a single bounded REST
// point-query; a fetch failure leaves the side absent.
func (a *Assembler) legQuote(ctx context.Context, inst *Instrument) *LegQuote {
	if inst == nil {
		return nil
	}

	tick, ok, err := a.store.Get(ctx, inst.Token)
	if err != nil {
		a.log.Warnw("Tick store read failed, treating as miss", "token", inst.Token, "error", err)
		ok = false
	}

	if !ok {
		if a.quotes == nil {
			return nil
		}
		tick, err = a.quotes.FetchQuote(ctx, inst.Token)
		if err != nil {
			return nil
		}
	}

	leg := &LegQuote{
		LTP:    tick.LTP,
		OI:     tick.OI,
		Volume: tick.Volume,
		IV:     tick.IV,
		Gamma:  tick.Gamma,
	}
	if leg.IV == 0 {
		leg.IV = a.pricing.ImpliedVol(*inst, tick)
	}
	if leg.Gamma == 0 {
		leg.Gamma = a.pricing.Greeks(*inst, tick).Gamma
	}
	return leg
}

// Spot resolves the current spot price for an underlying, for the pull
// endpoints.
func (a *Assembler) Spot(ctx context.Context, underlying string) (float64, error) {
	return a.spotPrice(ctx, underlying)
}

// spotPrice resolves the underlying index price: live tick, then REST
// point-query, then the previous snapshot's value. Only a cold start with no
// prior value fails.
func (a *Assembler) spotPrice(ctx context.Context, underlying string) (float64, error) {
	token := a.spotTokens[underlying]

	if token != "" {
		if tick, ok, err := a.store.Get(ctx, token); err == nil && ok && tick.LTP > 0 {
			a.rememberSpot(underlying, tick.LTP)
			return tick.LTP, nil
		}

		if a.quotes != nil {
			if tick, err := a.quotes.FetchQuote(ctx, token); err == nil && tick.LTP > 0 {
				a.rememberSpot(underlying, tick.LTP)
				return tick.LTP, nil
			}
		}
	}

	a.mu.RLock()
	prev, ok := a.lastSpot[underlying]
	a.mu.RUnlock()
	if ok {
		return prev, nil
	}

	return 0, errors.Wrapf(errors.ErrNoSpotPrice, "underlying %s", underlying)
}

func (a *Assembler) rememberSpot(underlying string, spot float64) {
	a.mu.Lock()
	a.lastSpot[underlying] = spot
	a.mu.Unlock()
}
