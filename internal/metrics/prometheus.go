package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	writeCounterVec(&sb, m.ExperimentsStarted)
	writeCounter(&sb, m.ExperimentsCompleted)
	writeCounter(&sb, m.ExperimentsFailed)

	writeCounter(&sb, m.TasksDispatched)
	writeCounterVec(&sb, m.TaskFailures)
	writeHistogram(&sb, m.TaskLatency)

	writeCounter(&sb, m.ImportedRecords)
	writeCounter(&sb, m.ImportFailures)

	writeCounter(&sb, m.QueriesExecuted)
	writeHistogram(&sb, m.QueryLatency)
	writeCounter(&sb, m.BackendErrors)

	writeCounter(&sb, m.JudgmentLookups)
	writeCounter(&sb, m.JudgmentMisses)

	writeCounterVec(&sb, m.StoreOps)
	writeCounterVec(&sb, m.StoreErrors)

	writeCounterVec(&sb, m.HTTPRequests)
	writeHistogramVec(&sb, m.HTTPDuration)
	writeGauge(&sb, m.HTTPRequestsInFlight)

	writeGauge(&sb, m.GoroutineCount)
	writeGauge(&sb, m.MemoryUsage)
	writeCounter(&sb, m.Uptime)

	return sb.String()
}

func writeCounter(sb *strings.Builder, c *Counter) {
	fmt.Fprintf(sb, "# HELP %s %s\n", c.Name(), c.Help())
	fmt.Fprintf(sb, "# TYPE %s counter\n", c.Name())
	sb.WriteString(c.Name())
	writeLabels(sb, c.Labels())
	fmt.Fprintf(sb, " %d\n", c.Value())
}

func writeGauge(sb *strings.Builder, g *Gauge) {
	fmt.Fprintf(sb, "# HELP %s %s\n", g.Name(), g.Help())
	fmt.Fprintf(sb, "# TYPE %s gauge\n", g.Name())
	sb.WriteString(g.Name())
	writeLabels(sb, g.Labels())
	fmt.Fprintf(sb, " %.0f\n", g.Value())
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	fmt.Fprintf(sb, "# HELP %s %s\n", h.Name(), h.Help())
	fmt.Fprintf(sb, "# TYPE %s histogram\n", h.Name())
	writeHistogramSamples(sb, h)
}

func writeHistogramSamples(sb *strings.Builder, h *Histogram) {
	buckets := h.Buckets()
	counts := h.BucketCounts()
	labels := h.Labels()

	for i, bucket := range buckets {
		sb.WriteString(h.Name())
		sb.WriteString("_bucket")
		writeLabelsWith(sb, labels, "le", fmt.Sprintf("%g", bucket))
		fmt.Fprintf(sb, " %d\n", counts[i])
	}

	sb.WriteString(h.Name())
	sb.WriteString("_bucket")
	writeLabelsWith(sb, labels, "le", "+Inf")
	fmt.Fprintf(sb, " %d\n", counts[len(counts)-1])

	sb.WriteString(h.Name())
	sb.WriteString("_sum")
	writeLabels(sb, labels)
	fmt.Fprintf(sb, " %.2f\n", h.Sum())

	sb.WriteString(h.Name())
	sb.WriteString("_count")
	writeLabels(sb, labels)
	fmt.Fprintf(sb, " %d\n", h.Count())
}

func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.GetAll()
	if len(counters) == 0 {
		return
	}

	fmt.Fprintf(sb, "# HELP %s %s\n", cv.Name(), cv.Help())
	fmt.Fprintf(sb, "# TYPE %s counter\n", cv.Name())

	for _, c := range counters {
		sb.WriteString(c.Name())
		writeLabels(sb, c.Labels())
		fmt.Fprintf(sb, " %d\n", c.Value())
	}
}

func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.GetAll()
	if len(histograms) == 0 {
		return
	}

	fmt.Fprintf(sb, "# HELP %s %s\n", hv.Name(), hv.Help())
	fmt.Fprintf(sb, "# TYPE %s histogram\n", hv.Name())

	for _, h := range histograms {
		writeHistogramSamples(sb, h)
	}
}

// writeLabels writes labels in Prometheus format {key="value",key2="value2"}.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(sb, "%s=\"%s\"", k, escapeString(labels[k]))
	}
	sb.WriteString("}")
}

// writeLabelsWith writes labels plus one extra pair (used for "le").
func writeLabelsWith(sb *strings.Builder, labels map[string]string, extraKey, extraValue string) {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged[extraKey] = extraValue
	writeLabels(sb, merged)
}

func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
