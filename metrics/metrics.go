// Package metrics expõe os contadores do motor em Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa os coletores do motor. Cada instância registra no
// Registerer recebido, o que permite registros isolados nos testes.
type Metrics struct {
	Tokenizations  *prometheus.CounterVec
	LedgerCalls    *prometheus.CounterVec
	LedgerDuration *prometheus.HistogramVec
	BatchItems     *prometheus.CounterVec
	SagaSteps      *prometheus.CounterVec
}

// New cria e registra os coletores.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Tokenizations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custodia",
			Subsystem: "token",
			Name:      "tokenizations_total",
			Help:      "Tokenization attempts by outcome code",
		}, []string{"outcome"}),
		LedgerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custodia",
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Ledger calls by operation and result",
		}, []string{"operation", "result"}),
		LedgerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "custodia",
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Ledger call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),
		BatchItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custodia",
			Subsystem: "batch",
			Name:      "items_total",
			Help:      "Transfer/burn batch items by operation and outcome",
		}, []string{"operation", "outcome"}),
		SagaSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custodia",
			Subsystem: "release",
			Name:      "saga_steps_total",
			Help:      "Release letter approval steps by step and phase",
		}, []string{"step", "phase"}),
	}
}

// NewNop cria coletores num registro descartável.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
