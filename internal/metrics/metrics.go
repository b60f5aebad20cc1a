// Package metrics exposes Prometheus collectors for the domain operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tasklattice/tasklattice/internal/types"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasklattice_operations_total",
			Help: "Domain operations by name and outcome",
		},
		[]string{"op", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tasklattice_operation_duration_seconds",
			Help:    "Duration of domain operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"op"},
	)

	// AutoPaused counts tasks moved back to pending by the single-active rule.
	AutoPaused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasklattice_tasks_auto_paused_total",
		Help: "Tasks moved from in_progress to pending because another task in the list started",
	})

	// CascadeDeleted counts lists soft-deleted by cascading deletes.
	CascadeDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasklattice_lists_cascade_deleted_total",
		Help: "Descendant lists soft-deleted by cascading list deletes",
	})

	// Orphaned counts tasks detached from a deleted list subtree.
	Orphaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasklattice_tasks_orphaned_total",
		Help: "Tasks whose list was deleted and whose list reference was cleared",
	})
)

// Observe records one operation. Call it deferred with a pointer to the
// named error result:
//
//	func (m *Manager) CreateList(...) (l *types.TaskList, err error) {
//	    defer metrics.Observe("create_list", time.Now(), &err)
func Observe(op string, start time.Time, errp *error) {
	outcome := "ok"
	if errp != nil && *errp != nil {
		outcome = string(types.KindOf(*errp))
		if outcome == "" {
			outcome = "error"
		}
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
