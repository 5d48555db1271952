package classify

import (
	"fmt"

	"migration-sentinel/internal/domain"
)

// Evaluator fuses metrics into a verdict.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an Evaluator. Empty unknown policies take the defaults.
func NewEvaluator(cfg Config) *Evaluator {
	def := DefaultUnknownPolicies()
	if cfg.Unknown.MarketCap == "" {
		cfg.Unknown.MarketCap = def.MarketCap
	}
	if cfg.Unknown.Gas == "" {
		cfg.Unknown.Gas = def.Gas
	}
	if cfg.Unknown.Bundle == "" {
		cfg.Unknown.Bundle = def.Bundle
	}
	return &Evaluator{cfg: cfg}
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate produces the ClassificationResult for one token.
// PASS iff every check passes after its unknown policy is applied.
func (e *Evaluator) Evaluate(tokenID, poolAddress string, m domain.MetricsBundle) *domain.ClassificationResult {
	checks := []domain.CheckResult{
		e.marketCap(m.MarketCapUSD),
		e.gas(m.GasPaidSOL),
		e.bundle(m.BundleRatio),
		e.oneShot(m.IsOneShot),
	}

	status := domain.StatusPass
	for _, c := range checks {
		if !c.Pass {
			status = domain.StatusCandidate
			break
		}
	}

	return &domain.ClassificationResult{
		TokenID:     tokenID,
		PoolAddress: poolAddress,
		Status:      status,
		Metrics:     m,
		Checks:      checks,
	}
}

func (e *Evaluator) marketCap(v *float64) domain.CheckResult {
	t := e.cfg.Thresholds
	c := domain.CheckResult{
		Name:      CheckMarketCap,
		Threshold: fmt.Sprintf("%.0f..%.0f USD", t.MinMarketCapUSD, t.MaxMarketCapUSD),
	}
	if v == nil {
		return unknown(c, e.cfg.Unknown.MarketCap)
	}
	return decided(c, fmt.Sprintf("%.0f", *v), t.MinMarketCapUSD <= *v && *v <= t.MaxMarketCapUSD)
}

func (e *Evaluator) gas(v *float64) domain.CheckResult {
	c := domain.CheckResult{
		Name:      CheckGas,
		Threshold: fmt.Sprintf("< %.2f SOL", e.cfg.Thresholds.MaxGasSOL),
	}
	if v == nil {
		return unknown(c, e.cfg.Unknown.Gas)
	}
	return decided(c, fmt.Sprintf("%.4f", *v), *v < e.cfg.Thresholds.MaxGasSOL)
}

func (e *Evaluator) bundle(v *float64) domain.CheckResult {
	c := domain.CheckResult{
		Name:      CheckBundle,
		Threshold: fmt.Sprintf(">= %.2f", e.cfg.Thresholds.MinBundleRatio),
	}
	if v == nil {
		return unknown(c, e.cfg.Unknown.Bundle)
	}
	return decided(c, fmt.Sprintf("%.4f", *v), *v >= e.cfg.Thresholds.MinBundleRatio)
}

// oneShot only gates the verdict when suppression is on.
func (e *Evaluator) oneShot(detected bool) domain.CheckResult {
	c := domain.CheckResult{Name: CheckOneShot, Threshold: "not detected"}
	actual := fmt.Sprintf("%t", detected)
	c.Actual = &actual
	c.Outcome = domain.OutcomePass
	if detected {
		c.Outcome = domain.OutcomeFail
	}
	c.Pass = !detected || !e.cfg.SuppressOneShot
	return c
}

func decided(c domain.CheckResult, actual string, ok bool) domain.CheckResult {
	c.Actual = &actual
	c.Pass = ok
	c.Outcome = domain.OutcomeFail
	if ok {
		c.Outcome = domain.OutcomePass
	}
	return c
}

func unknown(c domain.CheckResult, p UnknownPolicy) domain.CheckResult {
	c.Outcome = domain.OutcomeUnknown
	c.Pass = p.pass()
	return c
}
