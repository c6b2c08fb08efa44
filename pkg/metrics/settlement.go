package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts outcomes across the settlement pipeline.
type SettlementMetrics struct {
	links         *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	deadLetters   *prometheus.CounterVec
	movements     *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement counters on reg. A nil
// registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	links := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropship_settlement_links_total",
		Help: "Settlement link aggregation attempts by outcome.",
	}, []string{"outcome"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropship_payment_confirmations_total",
		Help: "Gateway confirmations handled by outcome.",
	}, []string{"outcome"})
	deadLetters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropship_settlement_dead_letters_total",
		Help: "Confirmations parked for operator review by reason.",
	}, []string{"reason"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropship_stock_movements_total",
		Help: "Stock movements appended by operation.",
	}, []string{"operation"})
	reg.MustRegister(links, confirmations, deadLetters, movements)
	return &SettlementMetrics{
		links:         links,
		confirmations: confirmations,
		deadLetters:   deadLetters,
		movements:     movements,
	}
}

func (s *SettlementMetrics) IncLink(outcome string) {
	if s == nil || s.links == nil {
		return
	}
	s.links.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (s *SettlementMetrics) IncConfirmation(outcome string) {
	if s == nil || s.confirmations == nil {
		return
	}
	s.confirmations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (s *SettlementMetrics) IncDeadLetter(reason string) {
	if s == nil || s.deadLetters == nil {
		return
	}
	s.deadLetters.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (s *SettlementMetrics) IncMovement(operation string) {
	if s == nil || s.movements == nil {
		return
	}
	s.movements.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
