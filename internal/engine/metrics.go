package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// changesTotal counts propagated changes.
	// Labels: mode (automatic, staged, compounded), status (ok, error)
	changesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "termbase",
		Subsystem: "engine",
		Name:      "changes_total",
		Help:      "Total propagated term changes",
	}, []string{"mode", "status"})

	// deletionsTotal counts propagated deletions.
	// Labels: mode (automatic, staged, compounded), status (ok, error)
	deletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "termbase",
		Subsystem: "engine",
		Name:      "deletions_total",
		Help:      "Total propagated term deletions",
	}, []string{"mode", "status"})

	// commitsTotal counts two-phase commits by how they ended.
	// Labels: outcome (finished, reverted, conflict, failed)
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "termbase",
		Subsystem: "engine",
		Name:      "commits_total",
		Help:      "Total two-phase commits by outcome",
	}, []string{"outcome"})

	// approvalsTotal counts participant approvals.
	approvalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "termbase",
		Subsystem: "engine",
		Name:      "approvals_total",
		Help:      "Total participant approvals",
	})

	// affectedTerms observes how many other terms one pass modified.
	affectedTerms = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "termbase",
		Subsystem: "engine",
		Name:      "affected_terms",
		Help:      "Number of other terms modified by one propagation pass",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
)

// Propagation modes used as metric labels.
const (
	modeAutomatic  = "automatic"
	modeStaged     = "staged"
	modeCompounded = "compounded"
)

// RecordChange records one propagated change.
func RecordChange(mode string, err error) {
	changesTotal.WithLabelValues(mode, status(err)).Inc()
}

// RecordDeletion records one propagated deletion.
func RecordDeletion(mode string, err error) {
	deletionsTotal.WithLabelValues(mode, status(err)).Inc()
}

// RecordCommit records how a commit ended.
func RecordCommit(outcome string) {
	commitsTotal.WithLabelValues(outcome).Inc()
}

// RecordApproval records one approval.
func RecordApproval() {
	approvalsTotal.Inc()
}

// RecordAffected records the size of one pass's update set.
func RecordAffected(n int) {
	affectedTerms.Observe(float64(n))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
