package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAdmission("password", "admitted")
	m.ObserveAdmission("password", "admitted")
	m.ObserveAdmission("google", "overridden")
	m.ObserveRejection("password", "DEVICE_CONFLICT")
	m.ObserveLogout()
	m.ObserveForceClear()
	m.ObserveRegistration()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Admissions.WithLabelValues("password", "admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Admissions.WithLabelValues("google", "overridden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("password", "DEVICE_CONFLICT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForceClears))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAdmission("password", "admitted")
		m.ObserveRejection("password", "UNAUTHORIZED")
		m.ObserveLogout()
		m.ObserveForceClear()
		m.ObserveRegistration()
	})
}
