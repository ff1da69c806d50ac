package metrics

import (
	"testing"
	"time"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, metric := range fam.GetMetric() {
			for k, v := range labels {
				found := false
				for _, pair := range metric.GetLabel() {
					if pair.GetName() == k && pair.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					continue metric
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	m := New()

	m.TaskMerged(2 * time.Minute)
	m.TaskMerged(time.Minute)
	m.TaskFailed("development")
	m.MergeConflict()
	m.AgentInvocation("Engineer")
	m.AgentInvocation("Engineer")
	m.AgentInvocation("TechLead")
	m.ReviewCompleted("APPROVED")

	if got := counterValue(t, m, "kugutsu_tasks_merged_total", nil); got != 2 {
		t.Errorf("tasks merged = %v, want 2", got)
	}
	if got := counterValue(t, m, "kugutsu_tasks_failed_total", map[string]string{"phase": "development"}); got != 1 {
		t.Errorf("tasks failed = %v, want 1", got)
	}
	if got := counterValue(t, m, "kugutsu_agent_invocations_total", map[string]string{"role": "Engineer"}); got != 2 {
		t.Errorf("engineer invocations = %v, want 2", got)
	}
	if got := counterValue(t, m, "kugutsu_reviews_total", map[string]string{"verdict": "APPROVED"}); got != 1 {
		t.Errorf("reviews = %v, want 1", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.TaskMerged(time.Second)
	m.TaskFailed("merge")
	m.MergeConflict()
	m.AgentInvocation("Engineer")
	m.ReviewCompleted("COMMENTED")
	if m.Registry() != nil {
		t.Error("nil metrics should have nil registry")
	}
}
