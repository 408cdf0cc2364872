package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m := New()

	m.ObserveOperation("createSettlement", "OK", time.Now())
	m.ObserveOperation("createSettlement", "OK", time.Now())
	m.ObserveOperation("createSettlement", "CONFLICT", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("createSettlement", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("createSettlement", "CONFLICT")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.ReconcileRuns.WithLabelValues("ok").Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tbill_ledger_reconcile_runs_total"])
	assert.True(t, names["go_goroutines"])
}
