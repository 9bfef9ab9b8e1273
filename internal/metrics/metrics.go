package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drops",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drops",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	dropsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drops",
			Subsystem: "engine",
			Name:      "drops_created_total",
			Help:      "Drops accepted, by moderation status.",
		},
		[]string{"status"},
	)

	votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drops",
			Subsystem: "engine",
			Name:      "votes_total",
			Help:      "Vote casts, by resulting change.",
		},
		[]string{"delta"},
	)

	peeks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drops",
			Subsystem: "engine",
			Name:      "peeks_total",
			Help:      "Peek attempts, by granularity and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	pollVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drops",
			Subsystem: "engine",
			Name:      "poll_votes_total",
			Help:      "Poll votes, by outcome.",
		},
		[]string{"outcome"},
	)

	feedDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "drops",
			Subsystem: "engine",
			Name:      "feed_build_duration_seconds",
			Help:      "Time spent loading and ranking a feed.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	presenceSubjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drops",
			Subsystem: "presence",
			Name:      "tracked_subjects",
			Help:      "Subjects with at least one live presence entry after the last sweep.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		dropsCreated,
		votes,
		peeks,
		pollVotes,
		feedDuration,
		presenceSubjects,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func DropCreated(status string) { dropsCreated.WithLabelValues(status).Inc() }

func VoteCast(delta int) { votes.WithLabelValues(strconv.Itoa(delta)).Inc() }

func Peek(kind, outcome string) { peeks.WithLabelValues(kind, outcome).Inc() }

func PollVote(outcome string) { pollVotes.WithLabelValues(outcome).Inc() }

func FeedBuilt(d time.Duration) { feedDuration.Observe(d.Seconds()) }

func PresenceSubjects(n int) { presenceSubjects.Set(float64(n)) }
