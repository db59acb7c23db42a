package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parish"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	bookingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_outcomes_total",
			Help:      "Booking attempts and transitions by outcome.",
		},
		[]string{"outcome"},
	)

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Availability checks by result.",
		},
		[]string{"result"},
	)

	statsDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "statistics_duration_seconds",
			Help:      "Time spent computing programme statistics.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	statsCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statistics_cache_total",
			Help:      "Statistics cache lookups by result.",
		},
		[]string{"result"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		},
		[]string{"job", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingOutcomes, availabilityChecks, statsDuration, statsCache, jobRuns)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, statusClass(code)).Inc()
}

func IncBooking(outcome string) {
	bookingOutcomes.WithLabelValues(outcome).Inc()
}

func IncAvailability(free bool) {
	result := "busy"
	if free {
		result = "free"
	}
	availabilityChecks.WithLabelValues(result).Inc()
}

func ObserveStatistics(d time.Duration) {
	statsDuration.Observe(d.Seconds())
}

func IncStatsCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	statsCache.WithLabelValues(result).Inc()
}

func IncJob(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobRuns.WithLabelValues(job, result).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
