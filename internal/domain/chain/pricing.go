package chain

// PricingProvider is the seam where an option-pricing model plugs in. The
// assembler consults it for legs whose feed tick carries no implied vol or
// greeks; this package does not compute either itself.
type PricingProvider interface {
	ImpliedVol(inst Instrument, tick Tick) float64
	Greeks(inst Instrument, tick Tick) Greeks
}

// StaticProvider returns fixed values for every contract. It stands in until
// a real pricing model is attached.
type StaticProvider struct {
	IV      float64
	Default Greeks
}

// NewStaticProvider returns a provider with flat index-option placeholders
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		IV: 15.0,
		Default: Greeks{
			Delta: 0.5,
			Gamma: 0.001,
			Theta: -10.0,
			Vega:  20.0,
		},
	}
}

func (p *StaticProvider) ImpliedVol(inst Instrument, tick Tick) float64 {
	return p.IV
}

func (p *StaticProvider) Greeks(inst Instrument, tick Tick) Greeks {
	return p.Default
}

// NoopProvider supplies no pricing data at all; legs keep whatever the feed
// delivered.
type NoopProvider struct{}

func (NoopProvider) ImpliedVol(Instrument, Tick) float64 { return 0 }

func (NoopProvider) Greeks(Instrument, Tick) Greeks { return Greeks{} }
