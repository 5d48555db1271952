// Package classify fuses a token's metrics into a PASS/CANDIDATE verdict.
package classify

// Check names.
const (
	CheckMarketCap = "Market cap"
	CheckGas       = "Gas paid"
	CheckBundle    = "Bundle ratio"
	CheckOneShot   = "One-shot buy"
)

// Thresholds bound the fused checks.
type Thresholds struct {
	MinMarketCapUSD float64
	MaxMarketCapUSD float64
	MaxGasSOL       float64 // exclusive
	MinBundleRatio  float64 // inclusive
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinMarketCapUSD: 100_000,
		MaxMarketCapUSD: 250_000,
		MaxGasSOL:       10.0,
		MinBundleRatio:  0.20,
	}
}

// UnknownPolicy decides how an unavailable metric counts.
type UnknownPolicy string

const (
	UnknownPass UnknownPolicy = "pass"
	UnknownFail UnknownPolicy = "fail"
)

// ParseUnknownPolicy parses "pass" or "fail"; anything else returns def.
func ParseUnknownPolicy(s string, def UnknownPolicy) UnknownPolicy {
	switch UnknownPolicy(s) {
	case UnknownPass, UnknownFail:
		return UnknownPolicy(s)
	}
	return def
}

func (p UnknownPolicy) pass() bool { return p == UnknownPass }

// UnknownPolicies holds the policy per check.
type UnknownPolicies struct {
	MarketCap UnknownPolicy
	Gas       UnknownPolicy
	Bundle    UnknownPolicy
}

// DefaultUnknownPolicies treats a missing bundle ratio as passing and any
// other missing metric as failing.
func DefaultUnknownPolicies() UnknownPolicies {
	return UnknownPolicies{
		MarketCap: UnknownFail,
		Gas:       UnknownFail,
		Bundle:    UnknownPass,
	}
}

// Config configures Evaluator.
type Config struct {
	Thresholds Thresholds
	Unknown    UnknownPolicies
	// SuppressOneShot makes a detected one-shot buy fail the verdict.
	SuppressOneShot bool
}

// DefaultConfig returns production defaults with one-shot suppression on.
func DefaultConfig() Config {
	return Config{
		Thresholds:      DefaultThresholds(),
		Unknown:         DefaultUnknownPolicies(),
		SuppressOneShot: true,
	}
}
