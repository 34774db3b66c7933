package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Reviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cleanwarts_reviews_total", Help: "Total review decisions by outcome"},
		[]string{"decision"},
	)
	ReviewStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cleanwarts_review_step_failures_total", Help: "Total failed review propagation steps"},
		[]string{"step"},
	)
	PointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cleanwarts_points_awarded_total", Help: "Total points awarded on approval"},
	)
	Submissions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cleanwarts_submissions_total", Help: "Total task completions submitted"},
	)
	TaskRequests = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cleanwarts_task_requests_total", Help: "Total cleaning requests created"},
	)
	ChatMessages = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cleanwarts_chat_messages_total", Help: "Total chat messages posted"},
	)
	PushSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cleanwarts_push_sent_total", Help: "Web push deliveries by result"},
		[]string{"result"},
	)
	DroppedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cleanwarts_realtime_dropped_total", Help: "Change events dropped on full subscriber buffers"},
	)
	WebSocketSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "cleanwarts_websocket_sessions", Help: "Open websocket sessions"},
	)
	Backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cleanwarts_backups_total", Help: "Database backups by result"},
		[]string{"result"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cleanwarts_http_requests_total", Help: "HTTP requests by method and status"},
		[]string{"method", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "cleanwarts_http_request_duration_seconds", Help: "HTTP request latency", Buckets: prometheus.DefBuckets},
		[]string{"method"},
	)
)

func Register() {
	prometheus.MustRegister(
		Reviews, ReviewStepFailures, PointsAwarded, Submissions, TaskRequests,
		ChatMessages, PushSent, DroppedEvents, WebSocketSessions, Backups, HTTPRequests, HTTPDuration,
	)
}
