package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors Auth reports to.
type Metrics struct {
	operations *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	users      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stitch",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth state machine operations by name and result.",
		}, []string{"operation", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stitch",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by trigger and result.",
		}, []string{"trigger", "result"}),
		users: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stitch",
			Subsystem: "auth",
			Name:      "users",
			Help:      "Locally known users by login state.",
		}, []string{"state"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.refreshes, m.users} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) observeRefresh(trigger string, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(trigger, resultLabel(err)).Inc()
}

func (m *Metrics) setUsers(loggedIn, loggedOut int) {
	if m == nil {
		return
	}
	m.users.WithLabelValues("logged_in").Set(float64(loggedIn))
	m.users.WithLabelValues("logged_out").Set(float64(loggedOut))
}
