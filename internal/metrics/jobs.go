package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_jobs_submitted_total",
			Help: "Synthesis submissions by result (accepted/rejected).",
		},
		[]string{"result"},
	)

	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_jobs_completed_total",
			Help: "Jobs that reached phase done, by outcome.",
		},
		[]string{"outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avatar_job_duration_seconds",
			Help:    "Time from submission to a terminal outcome.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"outcome"},
	)

	pollRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_poll_requests_total",
			Help: "Status polls by result (ok/transient_error/permanent_error).",
		},
		[]string{"result"},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "avatar_background_jobs",
			Help: "Jobs currently polled in the background.",
		},
	)

	videoServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_videos_served_total",
			Help: "play_video responses by source (archive/upstream).",
		},
		[]string{"source"},
	)
)

func init() {
	register(jobsSubmitted, jobsCompleted, jobDuration, pollRequests, activeJobs, videoServed)
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncSubmitted(accepted bool) {
	if accepted {
		jobsSubmitted.WithLabelValues("accepted").Inc()
		return
	}
	jobsSubmitted.WithLabelValues("rejected").Inc()
}

func ObserveCompleted(outcome string, elapsed time.Duration) {
	o := norm(outcome)
	jobsCompleted.WithLabelValues(o).Inc()
	jobDuration.WithLabelValues(o).Observe(elapsed.Seconds())
}

func IncPoll(result string) {
	pollRequests.WithLabelValues(norm(result)).Inc()
}

func BackgroundJobStarted()  { activeJobs.Inc() }
func BackgroundJobFinished() { activeJobs.Dec() }

func IncVideoServed(source string) {
	videoServed.WithLabelValues(norm(source)).Inc()
}
