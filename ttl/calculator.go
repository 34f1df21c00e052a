package ttl

import (
	"errors"
	"fmt"
	"time"
)

// staleFraction is the share of the effective TTL after which an entry is
// considered stale. Crossing it signals stale-while-revalidate, not a miss.
const staleFraction = 0.8

// Sentinel errors for TTL computation.
var (
	ErrInsufficientContext = errors.New("ttl: context needs an item type or a query type with completeness")
	ErrInvalidConfig       = errors.New("ttl: invalid configuration")
)

// Context identifies what a TTL is being computed for: either an item type,
// or a query type plus whether the result set is complete. Faceted and
// partial results get shorter lifetimes than complete collections under the
// same configuration.
type Context struct {
	ItemType string

	QueryType  string
	IsComplete bool
}

// Adjustment records one multiplier considered during TTL computation, for
// observability.
type Adjustment struct {
	Reason     string
	Multiplier float64
	Applied    bool
}

// Result is the outcome of a TTL computation.
type Result struct {
	BaseTTL        time.Duration
	FinalTTL       time.Duration
	StaleThreshold time.Duration
	Adjustments    []Adjustment
}

// CalculatorConfig configures base TTLs and the peak-hour adjustment.
//
// Base-TTL resolution order: type-specific override, then category default.
// Incomplete query results resolve through the facet rules and are capped at
// the complete-result TTL for the same query type.
type CalculatorConfig struct {
	// ItemDefault is the category default for items.
	ItemDefault time.Duration

	// QueryDefault is the category default for complete query results.
	QueryDefault time.Duration

	// FacetedDefault is the category default for faceted or partial query
	// results. Must be below QueryDefault so a partial result set never
	// outlives the complete one it was carved from.
	FacetedDefault time.Duration

	// ItemOverrides maps an item type to its TTL.
	ItemOverrides map[string]time.Duration

	// QueryOverrides maps a query type to its TTL.
	QueryOverrides map[string]time.Duration

	// FacetOverrides maps a query type to the TTL used for its incomplete
	// results.
	FacetOverrides map[string]time.Duration

	// PeakStartHour and PeakEndHour bound the [start,end) peak window in
	// local hours; start > end wraps past midnight. Equal values disable
	// the window.
	PeakStartHour int
	PeakEndHour   int

	// PeakMultiplier scales the base TTL inside the peak window. Zero
	// disables the adjustment.
	PeakMultiplier float64

	// Now supplies the clock for the peak-hour check. Defaults to time.Now.
	Now func() time.Time
}

// DefaultCalculatorConfig returns production defaults: 5 minute items,
// 5 minute complete queries, 1 minute faceted results, no peak window.
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		ItemDefault:    5 * time.Minute,
		QueryDefault:   5 * time.Minute,
		FacetedDefault: 1 * time.Minute,
	}
}

// Calculator computes TTLs from context. It is a pure function of its
// configuration and the injected clock.
type Calculator struct {
	cfg CalculatorConfig
	now func() time.Time
}

// NewCalculator validates the configuration and builds a calculator.
func NewCalculator(cfg CalculatorConfig) (*Calculator, error) {
	if cfg.ItemDefault <= 0 || cfg.QueryDefault <= 0 || cfg.FacetedDefault <= 0 {
		return nil, fmt.Errorf("%w: category defaults must be positive", ErrInvalidConfig)
	}
	if cfg.FacetedDefault > cfg.QueryDefault {
		return nil, fmt.Errorf("%w: faceted default %v exceeds query default %v", ErrInvalidConfig, cfg.FacetedDefault, cfg.QueryDefault)
	}
	if cfg.PeakStartHour < 0 || cfg.PeakStartHour > 23 || cfg.PeakEndHour < 0 || cfg.PeakEndHour > 23 {
		return nil, fmt.Errorf("%w: peak hours must be within 0-23", ErrInvalidConfig)
	}
	if cfg.PeakMultiplier < 0 {
		return nil, fmt.Errorf("%w: peak multiplier must not be negative", ErrInvalidConfig)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Calculator{cfg: cfg, now: now}, nil
}

// Explain computes the base and adjusted TTL plus the staleness threshold
// for the given context. A context naming neither an item type nor a query
// type fails fast with ErrInsufficientContext.
func (c *Calculator) Explain(ctx Context) (Result, error) {
	base, err := c.baseTTL(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{BaseTTL: base, FinalTTL: base}

	peak := Adjustment{Reason: "peak-hours", Multiplier: c.cfg.PeakMultiplier}
	if c.cfg.PeakMultiplier > 0 && c.inPeakWindow(c.now()) {
		peak.Applied = true
		res.FinalTTL = time.Duration(float64(base) * c.cfg.PeakMultiplier)
	}
	res.Adjustments = append(res.Adjustments, peak)

	res.StaleThreshold = time.Duration(float64(res.FinalTTL) * staleFraction)
	return res, nil
}

func (c *Calculator) baseTTL(ctx Context) (time.Duration, error) {
	switch {
	case ctx.ItemType != "":
		if ttl, ok := c.cfg.ItemOverrides[ctx.ItemType]; ok {
			return ttl, nil
		}
		return c.cfg.ItemDefault, nil

	case ctx.QueryType != "":
		complete := c.cfg.QueryDefault
		if ttl, ok := c.cfg.QueryOverrides[ctx.QueryType]; ok {
			complete = ttl
		}
		if ctx.IsComplete {
			return complete, nil
		}
		faceted := c.cfg.FacetedDefault
		if ttl, ok := c.cfg.FacetOverrides[ctx.QueryType]; ok {
			faceted = ttl
		}
		// An incomplete result never outlives the complete result for the
		// same query type, even when the type carries a short override.
		if faceted > complete {
			faceted = complete
		}
		return faceted, nil

	default:
		return 0, ErrInsufficientContext
	}
}

// inPeakWindow reports whether t falls inside the [start,end) hour window,
// wrapping past midnight when start > end.
func (c *Calculator) inPeakWindow(t time.Time) bool {
	start, end := c.cfg.PeakStartHour, c.cfg.PeakEndHour
	if start == end {
		return false
	}
	h := t.Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// AdaptiveTTL scales a base TTL down by the observed change rate of the
// underlying data: ten or more changes per hour quarters the TTL, two or
// more keeps three quarters, anything calmer keeps the full TTL.
func AdaptiveTTL(base time.Duration, changesPerHour float64) time.Duration {
	switch {
	case changesPerHour >= 10:
		return time.Duration(float64(base) * 0.25)
	case changesPerHour >= 2:
		return time.Duration(float64(base) * 0.75)
	default:
		return base
	}
}

// StaleAfter returns the stale-while-revalidate threshold for a TTL.
func StaleAfter(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl) * staleFraction)
}
