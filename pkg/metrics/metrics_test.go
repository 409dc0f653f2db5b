package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { RegisterCollectors(reg) })
	// registering twice on the same registry must fail loudly
	require.Panics(t, func() { RegisterCollectors(reg) })

	TasksProcessed.WithLabelValues("document-import", "succeeded").Inc()
	require.Equal(t, 1, testutil.CollectAndCount(TasksProcessed, "coursebay_tasks_processed_total"))
}
