package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	jobsReceivedTotal  atomic.Uint64
	jobsStartedTotal   atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	jobsDroppedTotal   atomic.Uint64

	recordsSweptTotal      atomic.Uint64
	recordsReconciledTotal atomic.Uint64

	jobDuration = newHistogram([]float64{0.5, 1, 2.5, 5, 10, 30, 60, 300, 900, 1800})
)

// IncJobsReceived increments the received counter.
func IncJobsReceived() { jobsReceivedTotal.Add(1) }

// IncJobsStarted increments the started counter.
func IncJobsStarted() { jobsStartedTotal.Add(1) }

// IncJobsCompleted increments the completed counter.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed increments the failed counter.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncJobsDropped counts unrecoverable messages discarded without processing.
func IncJobsDropped() { jobsDroppedTotal.Add(1) }

// AddRecordsSwept counts records deleted by the retention sweeper.
func AddRecordsSwept(n int) {
	if n > 0 {
		recordsSweptTotal.Add(uint64(n))
	}
}

// AddRecordsReconciled counts stale processing records force-failed.
func AddRecordsReconciled(n int) {
	if n > 0 {
		recordsReconciledTotal.Add(uint64(n))
	}
}

// ObserveJobDurationSeconds records a job's processing duration.
func ObserveJobDurationSeconds(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_jobs_received_total", "Total analysis jobs received from the queue", jobsReceivedTotal.Load())
	writeCounter(&buf, "analysis_jobs_started_total", "Total analysis jobs started", jobsStartedTotal.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Total analysis jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Total analysis jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "analysis_jobs_dropped_total", "Total unrecoverable queue messages dropped", jobsDroppedTotal.Load())
	writeCounter(&buf, "analysis_records_swept_total", "Total terminal records deleted by retention sweeps", recordsSweptTotal.Load())
	writeCounter(&buf, "analysis_records_reconciled_total", "Total stale processing records force-failed", recordsReconciledTotal.Load())
	writeHistogram(&buf, "analysis_job_duration_seconds", "Analysis job duration in seconds", jobDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
