package metrics

import "github.com/prometheus/client_golang/prometheus"

func newAdminActionsVec(namespace string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exporter_admin_actions_total",
			Help:      "Total number of admin actions grouped by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
}

// ObserveAdminAction 记录一次管理端操作及其结果。
func (s *Store) ObserveAdminAction(action string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	s.adminActions.WithLabelValues(action, outcome).Inc()
}
