package funding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// backingsTotal counts backing creation attempts by outcome
	backingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdfund_backings_total",
		Help: "Backing creation attempts by result",
	}, []string{"result"})

	backingCancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdfund_backing_cancellations_total",
		Help: "Backings moved to cancelled",
	})

	// fundingEffectsTotal counts apply attempts: applied, duplicate, conflict, transient, failed
	fundingEffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdfund_funding_effects_total",
		Help: "Funding effect apply attempts by result",
	}, []string{"result"})

	reconcilePendingEffects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crowdfund_reconcile_pending_effects",
		Help: "Pending funding effects found by the last reconcile pass",
	})

	reconcileAbandonedEffects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdfund_reconcile_abandoned_effects_total",
		Help: "Funding effects marked failed after exhausting their attempts",
	})
)
