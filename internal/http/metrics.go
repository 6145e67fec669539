package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Dominio auth
	loginsTotal          *prometheus.CounterVec // method: magic_link|google|github; outcome: issued|waitlisted|denied|invalid
	magicLinksIssued     prometheus.Counter
	socialCallbacksTotal *prometheus.CounterVec // outcome: ok|retry|abort|terminal
	webhookEventsTotal   *prometheus.CounterVec // outcome: ok|rejected
)

// RegisterMetrics inicializa las métricas y devuelve el handler de /metrics.
func RegisterMetrics(registry prometheus.Registerer) (http.Handler, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		loginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Logins por método y resultado",
		}, []string{"method", "outcome"})

		magicLinksIssued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_magic_links_issued_total",
			Help: "Magic links generados y despachados",
		})

		socialCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_social_callbacks_total",
			Help: "Callbacks de providers sociales por resultado",
		}, []string{"provider", "outcome"})

		webhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Eventos de webhook por resultado de verificación",
		}, []string{"outcome"})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration,
			loginsTotal, magicLinksIssued, socialCallbacksTotal, webhookEventsTotal,
		} {
			if err := registerCollector(registry, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}
	return promhttp.Handler(), nil
}

func registerCollector(r prometheus.Registerer, c prometheus.Collector) error {
	if err := r.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// WithHTTPMetrics instrumenta cada request. pathLabel viene del patrón de
// ruta, no del path crudo (cardinalidad acotada).
func WithHTTPMetrics(pathLabel string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, pathLabel, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, pathLabel).Observe(time.Since(start).Seconds())
	})
}

func countLogin(method, outcome string) {
	if loginsTotal != nil {
		loginsTotal.WithLabelValues(method, outcome).Inc()
	}
}

func countMagicLinkIssued() {
	if magicLinksIssued != nil {
		magicLinksIssued.Inc()
	}
}

func countSocialCallback(provider, outcome string) {
	if socialCallbacksTotal != nil {
		socialCallbacksTotal.WithLabelValues(provider, outcome).Inc()
	}
}

func countWebhookEvent(outcome string) {
	if webhookEventsTotal != nil {
		webhookEventsTotal.WithLabelValues(outcome).Inc()
	}
}
