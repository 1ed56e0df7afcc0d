package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PayoutMetrics counts settlement outcomes.
type PayoutMetrics struct {
	invoices        *prometheus.CounterVec
	adjustments     *prometheus.CounterVec
	vouchers        *prometheus.CounterVec
	refundDecisions *prometheus.CounterVec
}

// NewPayoutMetrics registers the payout counters on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_invoices_total",
		Help: "Payout invoice generation outcomes.",
	}, []string{"outcome"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_adjustments_total",
		Help: "Payout adjustments recorded, by type.",
	}, []string{"type"})
	vouchers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_vouchers_issued_total",
		Help: "Refund vouchers issued, by cancellation initiator.",
	}, []string{"initiator"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_refund_decisions_total",
		Help: "Voucher refund request resolutions, by status.",
	}, []string{"status"})
	reg.MustRegister(invoices, adjustments, vouchers, decisions)
	return &PayoutMetrics{
		invoices:        invoices,
		adjustments:     adjustments,
		vouchers:        vouchers,
		refundDecisions: decisions,
	}
}

// IncInvoice records a generation outcome: created, existing or skipped.
func (p *PayoutMetrics) IncInvoice(outcome string) {
	if p == nil || p.invoices == nil {
		return
	}
	p.invoices.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (p *PayoutMetrics) IncAdjustment(adjustmentType string) {
	if p == nil || p.adjustments == nil {
		return
	}
	p.adjustments.WithLabelValues(normalizeLabel(adjustmentType)).Inc()
}

func (p *PayoutMetrics) IncVoucherIssued(initiator string) {
	if p == nil || p.vouchers == nil {
		return
	}
	p.vouchers.WithLabelValues(normalizeLabel(initiator)).Inc()
}

func (p *PayoutMetrics) IncRefundDecision(status string) {
	if p == nil || p.refundDecisions == nil {
		return
	}
	p.refundDecisions.WithLabelValues(normalizeLabel(status)).Inc()
}
