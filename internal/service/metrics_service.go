package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/phd-portal-api/internal/forms"
)

// MetricsService owns the Prometheus registry: HTTP request metrics plus
// workflow counters per form type.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	formsCreated    *prometheus.CounterVec
	formTransitions *prometheus.CounterVec
	notifications   prometheus.Counter
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	formsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forms_created_total",
		Help: "Form instances created per form type",
	}, []string{"form_type"})

	formTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "form_transitions_total",
		Help: "Workflow transitions per form type and outcome",
	}, []string{"form_type", "kind"})

	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Notifications written by the dispatch workers",
	})

	registry.MustRegister(requestDuration, requestTotal, formsCreated, formTransitions, notifications)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		formsCreated:    formsCreated,
		formTransitions: formTransitions,
		notifications:   notifications,
	}
}

// Handler serves the scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveCreation records a new form instance.
func (s *MetricsService) ObserveCreation(formType string) {
	s.formsCreated.WithLabelValues(formType).Inc()
}

// ObserveTransition records one workflow transition.
func (s *MetricsService) ObserveTransition(formType string, kind forms.EventKind) {
	s.formTransitions.WithLabelValues(formType, string(kind)).Inc()
}

// ObserveNotification records one dispatched notification.
func (s *MetricsService) ObserveNotification() {
	s.notifications.Inc()
}
