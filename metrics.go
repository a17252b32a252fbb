package honeyguard

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// InMemoryMetricsCollector implements MetricsCollector with in-process maps
// and a Prometheus text export for the dashboard scrape endpoint.
type InMemoryMetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]map[string]int64
	gauges     map[string]map[string]float64
	histograms map[string][]float64
}

func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return &InMemoryMetricsCollector{
		counters:   make(map[string]map[string]int64),
		gauges:     make(map[string]map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *InMemoryMetricsCollector) IncrementCounter(name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[name] == nil {
		m.counters[name] = make(map[string]int64)
	}
	m.counters[name][labelKey(labels)]++
}

func (m *InMemoryMetricsCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name] = append(m.histograms[name], value)
}

func (m *InMemoryMetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauges[name] == nil {
		m.gauges[name] = make(map[string]float64)
	}
	m.gauges[name][labelKey(labels)] = value
}

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return strings.Join(parts, ",")
}

// CounterValue returns the current value of a counter, for tests and the
// stats endpoint.
func (m *InMemoryMetricsCollector) CounterValue(name string, labels map[string]string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if counters, exists := m.counters[name]; exists {
		return counters[labelKey(labels)]
	}
	return 0
}

func (m *InMemoryMetricsCollector) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_ = len(m.counters)
	return nil
}

// ExportPrometheus exports metrics in Prometheus text format.
func (m *InMemoryMetricsCollector) ExportPrometheus() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var output strings.Builder
	for _, name := range sortedKeys(m.counters) {
		output.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
		for _, lk := range sortedKeys(m.counters[name]) {
			output.WriteString(formatSample(name, lk, fmt.Sprintf("%d", m.counters[name][lk])))
		}
	}
	for _, name := range sortedKeys(m.gauges) {
		output.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
		for _, lk := range sortedKeys(m.gauges[name]) {
			output.WriteString(formatSample(name, lk, fmt.Sprintf("%g", m.gauges[name][lk])))
		}
	}
	for _, name := range sortedKeys(m.histograms) {
		values := m.histograms[name]
		if len(values) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		output.WriteString(fmt.Sprintf("# TYPE %s histogram\n", name))
		output.WriteString(fmt.Sprintf("%s_sum %g\n", name, sum))
		output.WriteString(fmt.Sprintf("%s_count %d\n", name, len(values)))
	}
	return output.String()
}

func formatSample(name, lk, value string) string {
	if lk == "" {
		return fmt.Sprintf("%s %s\n", name, value)
	}
	return fmt.Sprintf("%s{%s} %s\n", name, lk, value)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
