package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistersAgainstRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SyncTotal.WithLabelValues("polling", ResultSuccess).Inc()
	m.EventsDropped.Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncTotal.WithLabelValues("polling", ResultSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsDropped))

	count, err := testutil.GatherAndCount(reg, "featureprobe_sync_total", "featureprobe_events_dropped_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTwoClientsDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultFailure, Result(errors.New("boom")))
}
