// Package metrics содержит счётчики Prometheus сервиса аутентификации.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "glassworks_auth"

// Metrics — набор счётчиков жизненного цикла сессий.
type Metrics struct {
	Admissions    *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	Logouts       prometheus.Counter
	ForceClears   prometheus.Counter
	Registrations prometheus.Counter
}

// New создаёт счётчики и регистрирует их в reg. Если reg равен nil, используется реестр по умолчанию.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_admissions_total",
			Help:      "Admitted logins by method and outcome.",
		}, []string{"method", "outcome"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_rejections_total",
			Help:      "Rejected logins by method and error code.",
		}, []string{"method", "code"}),
		Logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Completed logouts.",
		}),
		ForceClears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_force_clears_total",
			Help:      "Completed forced session clears.",
		}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Created accounts.",
		}),
	}
	reg.MustRegister(m.Admissions, m.Rejections, m.Logouts, m.ForceClears, m.Registrations)
	return m
}

// ObserveAdmission учитывает допущенный вход.
func (m *Metrics) ObserveAdmission(method, outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(method, outcome).Inc()
}

// ObserveRejection учитывает отклонённый вход.
func (m *Metrics) ObserveRejection(method, code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(method, code).Inc()
}

// ObserveLogout учитывает выход.
func (m *Metrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.Logouts.Inc()
}

// ObserveForceClear учитывает принудительный сброс сессии.
func (m *Metrics) ObserveForceClear() {
	if m == nil {
		return
	}
	m.ForceClears.Inc()
}

// ObserveRegistration учитывает регистрацию.
func (m *Metrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}
