package locker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenlock_transitions_total",
			Help: "Total number of lock transitions by operation and result",
		}, []string{"operation", "result"})
	feesCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenlock_fees_collected_total",
			Help: "Total fee units collected on deposits, by fee mode",
		}, []string{"mode"})
)

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if name := NameOf(err); name != "" {
		return name
	}
	return "error"
}
