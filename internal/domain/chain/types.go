package chain

import (
	"time"
)

// OptionSide is the contract side as listed on the exchange segment.
type OptionSide string

const (
	SideCall OptionSide = "CE"
	SidePut  OptionSide = "PE"
)

// Tick is the latest raw market update for one instrument. Ticks are
// ephemeral: the store drops them when they are not refreshed within the TTL,
// and a stale tick is treated as absent.
type Tick struct {
	Token     string    `json:"token"`
	LTP       float64   `json:"ltp"`
	OI        int64     `json:"oi"`
	Volume    int64     `json:"volume"`
	IV        float64   `json:"iv,omitempty"`
	Gamma     float64   `json:"gamma,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Instrument is one leg of the catalog, keyed by (underlying, expiry, strike,
// side). Immutable once loaded; the catalog is rebuilt wholesale, never
// patched in place.
type Instrument struct {
	Underlying string
	Expiry     string // calendar date, YYYY-MM-DD
	Strike     float64
	Side       OptionSide
	Token      string
	Symbol     string
}

// Greeks holds per-contract sensitivities supplied by a pricing provider.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// LegQuote is the joined per-side state of one strike.
type LegQuote struct {
	LTP    float64 `json:"ltp"`
	OI     int64   `json:"oi"`
	Volume int64   `json:"volume"`
	IV     float64 `json:"iv"`
	Gamma  float64 `json:"gamma,omitempty"`
}

// ChainRow is one strike of the assembled chain. Either side may be nil when
// the corresponding tick is missing or stale; a one-sided row is valid.
type ChainRow struct {
	Strike float64   `json:"strike"`
	Call   *LegQuote `json:"CE,omitempty"`
	Put    *LegQuote `json:"PE,omitempty"`
}

// ChainSnapshot is the unit delivered to clients. Immutable once assembled.
type ChainSnapshot struct {
	Symbol        string     `json:"symbol"`
	Expiry        string     `json:"expiry"`
	SpotPrice     float64    `json:"spot_price"`
	Timestamp     time.Time  `json:"timestamp"`
	Rows          []ChainRow `json:"option_chain"`
	PutCallRatio  float64    `json:"pcr_oi"`
	GammaExposure float64    `json:"net_gex"`
	MaxPainStrike float64    `json:"max_pain"`
	TotalCallOI   int64      `json:"total_call_oi"`
	TotalPutOI    int64      `json:"total_put_oi"`
}
