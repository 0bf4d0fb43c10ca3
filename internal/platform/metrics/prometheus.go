package metrics

import (
	"net/http"
	"strings"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsManager holds the marketplace Prometheus metrics.
type MetricsManager struct {
	Registry               *prometheus.Registry
	ProductsPublishedTotal prometheus.Counter
	ProductsUpdatedTotal   prometheus.Counter
	ProductsDeletedTotal   prometheus.Counter
	FavoriteTogglesTotal   *prometheus.CounterVec
	UploadRejectionsTotal  *prometheus.CounterVec
	HTTPRequestLatency     *prometheus.HistogramVec
}

// NewMetricsManager registers every metric on a private registry. Dashes in
// namespace become underscores.
func NewMetricsManager(namespace string) *MetricsManager {
	namespace = strings.ReplaceAll(namespace, "-", "_")
	registry := prometheus.NewRegistry()

	m := &MetricsManager{
		Registry: registry,
		ProductsPublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_published_total",
			Help:      "Total number of listings published.",
		}),
		ProductsUpdatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_updated_total",
			Help:      "Total number of listings edited.",
		}),
		ProductsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_deleted_total",
			Help:      "Total number of listings deleted.",
		}),
		FavoriteTogglesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorite_toggles_total",
			Help:      "Favorite toggles by resulting state.",
		}, []string{"favorited"}),
		UploadRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_rejections_total",
			Help:      "Photo uploads refused by reason.",
		}, []string{"reason"}),
		HTTPRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "Latency of HTTP requests by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	registry.MustRegister(
		m.ProductsPublishedTotal,
		m.ProductsUpdatedTotal,
		m.ProductsDeletedTotal,
		m.FavoriteTogglesTotal,
		m.UploadRejectionsTotal,
		m.HTTPRequestLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves /metrics on the given port. An empty port disables it.
func StartMetricsServer(port string, appLogger *logger.Logger, m *MetricsManager) error {
	if port == "" {
		appLogger.Info("metrics server port not configured, server will not start")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	appLogger.Info("metrics server starting", zap.String("port", port), zap.String("path", "/metrics"))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return server.ListenAndServe()
}
