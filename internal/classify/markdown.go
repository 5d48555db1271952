package classify

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"migration-sentinel/internal/domain"
)

// DexScreenerPairURL is the public pair page.
const DexScreenerPairURL = "https://dexscreener.com/solana/"

var printer = message.NewPrinter(language.English)

// ShortMint abbreviates a mint as ABCDEF...WXYZ.
func ShortMint(mint string) string {
	if len(mint) <= 10 {
		return mint
	}
	return mint[:6] + "..." + mint[len(mint)-4:]
}

// Title renders the notification title.
func Title(r *domain.ClassificationResult) string {
	return fmt.Sprintf("[%s] Migrated token: %s", r.Status, ShortMint(r.TokenID))
}

// RenderMarkdown renders a ClassificationResult as the notification body.
// ttcHuman is the humanized time-to-complete, "-" when unknown.
func RenderMarkdown(r *domain.ClassificationResult, t Thresholds, ttcHuman string, sentAt time.Time) string {
	var sb strings.Builder
	m := r.Metrics

	sb.WriteString(fmt.Sprintf("**Mint:** `%s`\n\n", r.TokenID))
	sb.WriteString(fmt.Sprintf("**Pair:** `%s`\n\n", r.PoolAddress))

	if m.PriceUSD != nil {
		sb.WriteString(fmt.Sprintf("**Price:** $%.6f\n\n", *m.PriceUSD))
	} else {
		sb.WriteString("**Price:** N/A\n\n")
	}

	mcap := "N/A"
	if m.MarketCapUSD != nil {
		mcap = printer.Sprintf("$%.0f", *m.MarketCapUSD)
	}
	sb.WriteString(printer.Sprintf("**MCap (est):** %s  (range: %.0f–%.0f)\n\n",
		mcap, t.MinMarketCapUSD, t.MaxMarketCapUSD))

	gas := "N/A"
	if m.GasPaidSOL != nil {
		gas = fmt.Sprintf("%.3f SOL", *m.GasPaidSOL)
	}
	sb.WriteString(fmt.Sprintf("**Global Gas Fee Paid:** %s  (max < %g)\n\n", gas, t.MaxGasSOL))
	if f := m.Fees; f != nil && (f.DexSOL > 0 || f.BundleSOL > 0) {
		sb.WriteString(fmt.Sprintf("**Gas/Fees (SOL):** txn=%.6f, dex=%.6f, bundle=%.6f (cnt: txn=%d, trade=%d, bundle=%d)\n\n",
			f.TxnSOL, f.DexSOL, f.BundleSOL, f.TxnCount, f.TradeCount, f.BundleCount))
	}

	bundle := "N/A"
	if m.BundleRatio != nil {
		bundle = fmt.Sprintf("%.1f%%", *m.BundleRatio*100)
	}
	sb.WriteString(fmt.Sprintf("**Bundle Ratio:** %s  (min ≥ %.0f%% if enabled)", bundle, t.MinBundleRatio*100))
	if b := m.Bundle; b != nil {
		sb.WriteString(fmt.Sprintf(" (bundlers=%d, total=%d, slots=%d)", b.BundlerWallets, b.TotalWallets, b.BundledSlots))
	}
	sb.WriteString("\n\n")

	if m.TopHolderRatio != nil {
		sb.WriteString(fmt.Sprintf("**Top10 holders:** %.2f%%\n\n", *m.TopHolderRatio*100))
	}
	if m.CreationTime != nil {
		sb.WriteString(fmt.Sprintf("**CreationTime:** %s\n\n", time.UnixMilli(*m.CreationTime).UTC().Format("2006-01-02 15:04:05")))
	}
	sb.WriteString(fmt.Sprintf("**TTC:** %s\n\n", ttcHuman))

	oneShot := "No"
	if m.IsOneShot {
		oneShot = "Yes"
	}
	sb.WriteString(fmt.Sprintf("**One-Shot Detected:** %s\n\n", oneShot))
	if m.HasPriorityTip {
		sb.WriteString("**Priority tips seen:** Yes\n\n")
	}

	sb.WriteString(fmt.Sprintf("**DexScreener:** %s%s\n\n", DexScreenerPairURL, r.PoolAddress))
	sb.WriteString(fmt.Sprintf("_sent at %s_", sentAt.Format("2006-01-02 15:04:05")))

	return sb.String()
}

// RenderChecks renders the check table, used by the inspect command.
func RenderChecks(r *domain.ClassificationResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Verdict: %s\n\n", r.Status))
	sb.WriteString("| # | Check | Threshold | Actual | Outcome | Pass |\n")
	sb.WriteString("|---|-------|-----------|--------|---------|------|\n")
	for i, c := range r.Checks {
		actual := "N/A"
		if c.Actual != nil {
			actual = *c.Actual
		}
		passStr := "PASS"
		if !c.Pass {
			passStr = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Threshold, actual, c.Outcome, passStr))
	}
	sb.WriteString("\n")

	passed := 0
	for _, c := range r.Checks {
		if c.Pass {
			passed++
		}
	}
	sb.WriteString(fmt.Sprintf("Checks: %d/%d passed\n", passed, len(r.Checks)))
	return sb.String()
}
