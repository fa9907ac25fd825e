package billing

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/observability"
)

// Method identifies the strategy that produced a cost breakdown.
type Method string

const (
	// MethodVendorReported means the backend attached the figure itself.
	MethodVendorReported Method = "vendor-reported"

	// MethodComputed means the figure was derived from the price table.
	MethodComputed Method = "computed-from-price-table"
)

var million = decimal.NewFromInt(1_000_000)

// CostBreakdown is the derived cost of one request, in USD. Total is
// always Input + Output exactly. Failed marks a zero-cost fallback where
// derivation could not complete; a zero total is only ever accompanied by
// Failed or genuinely zero rates.
type CostBreakdown struct {
	Input  decimal.Decimal `json:"input"`
	Output decimal.Decimal `json:"output"`
	Total  decimal.Decimal `json:"total"`
	Method Method          `json:"method"`
	Failed bool            `json:"failed,omitempty"`

	// TableVersion is set for computed breakdowns so billing audits can
	// reproduce the figure.
	TableVersion string `json:"table_version,omitempty"`
}

// Attributor derives cost breakdowns. It holds only the immutable price
// table and is safe for concurrent use.
type Attributor struct {
	table *PriceTable
}

// NewAttributor creates an attributor over a loaded price table. The
// table may be nil, in which case every computed derivation falls back to
// a failure-tagged zero breakdown.
func NewAttributor(table *PriceTable) *Attributor {
	return &Attributor{table: table}
}

// Attribute derives the cost breakdown for one completed run.
//
// Strategy selection is exclusive by run mode: streamed runs never read
// the vendor cost fields (streaming backends do not populate them
// reliably, and a stale figure must not leak into billing); non-streamed
// runs with a vendor figure use it verbatim and never touch the price
// table. A non-streamed run without a vendor figure is priced from the
// table like a streamed one.
//
// Derivation failures produce a zero-cost breakdown with Failed set.
// They are never raised: a billing gap must not fail the user-visible
// answer.
func (a *Attributor) Attribute(usage api.Usage, streamed bool, provider, model string) CostBreakdown {
	var breakdown CostBreakdown
	if !streamed && usage.VendorCost != nil {
		breakdown = vendorBreakdown(usage)
	} else {
		breakdown = a.computedBreakdown(usage, provider, model)
	}

	strategy := "computed"
	if breakdown.Method == MethodVendorReported {
		strategy = "vendor"
	}
	outcome := "ok"
	if breakdown.Failed {
		outcome = "failed"
	}
	observability.CostAttributionsTotal.WithLabelValues(strategy, outcome).Inc()
	if !breakdown.Failed {
		total, _ := breakdown.Total.Float64()
		observability.AttributedCostTotal.WithLabelValues(provider, model).Add(total)
	}

	slog.Info("cost attributed",
		"provider", provider,
		"model", model,
		"streamed", streamed,
		"method", string(breakdown.Method),
		"failed", breakdown.Failed,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"input_cost", breakdown.Input.String(),
		"output_cost", breakdown.Output.String(),
		"total_cost", breakdown.Total.String(),
	)
	return breakdown
}

// vendorBreakdown builds a breakdown from the backend-reported figures.
// The vendor total is authoritative; when the backend also reports the
// output-side split, the input side is derived as total minus output so
// the sum holds exactly even if the backend's own parts drift.
func vendorBreakdown(usage api.Usage) CostBreakdown {
	total := decimal.NewFromFloat(*usage.VendorCost)
	if total.IsNegative() {
		slog.Warn("vendor reported negative cost, falling back to zero", "cost", total.String())
		return CostBreakdown{Method: MethodVendorReported, Failed: true}
	}

	output := decimal.Zero
	if usage.VendorOutputCost != nil {
		output = decimal.NewFromFloat(*usage.VendorOutputCost)
		if output.IsNegative() || output.GreaterThan(total) {
			output = decimal.Zero
		}
	}

	return CostBreakdown{
		Input:  total.Sub(output),
		Output: output,
		Total:  total,
		Method: MethodVendorReported,
	}
}

// computedBreakdown prices token counts against the table. A missing
// table or missing entry yields a failure-tagged zero breakdown.
func (a *Attributor) computedBreakdown(usage api.Usage, provider, model string) CostBreakdown {
	if a.table == nil {
		slog.Warn("no price table loaded, recording zero cost", "provider", provider, "model", model)
		return CostBreakdown{Method: MethodComputed, Failed: true}
	}

	rate, ok := a.table.Lookup(provider, model)
	if !ok {
		slog.Warn("model missing from price table, recording zero cost",
			"provider", provider,
			"model", model,
			"table_version", a.table.Version(),
		)
		return CostBreakdown{Method: MethodComputed, Failed: true, TableVersion: a.table.Version()}
	}

	input := decimal.NewFromInt(int64(usage.InputTokens)).Mul(rate.InputPerMillion).Div(million)
	output := decimal.NewFromInt(int64(usage.OutputTokens)).Mul(rate.OutputPerMillion).Div(million)

	return CostBreakdown{
		Input:        input,
		Output:       output,
		Total:        input.Add(output),
		Method:       MethodComputed,
		TableVersion: a.table.Version(),
	}
}
