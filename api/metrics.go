package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bidvault/auction"
)

// Metrics 每個 Server 一份 registry，測試之間不會互相污染
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 請求數與耗時，path 使用路由模板
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	// 引擎操作結果，result 為 ok 或錯誤分類
	operations *prometheus.CounterVec
	// 上傳被拒絕的次數
	uploadsRejected *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidvault_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bidvault_http_request_duration_seconds",
				Help:    "HTTP request latency distributions.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"method", "path"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidvault_auction_operations_total",
				Help: "Auction engine operations by result.",
			},
			[]string{"operation", "result"},
		),
		uploadsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidvault_image_uploads_rejected_total",
				Help: "Rejected image uploads by reason.",
			},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.operations,
		m.uploadsRejected,
	)
	return m
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		// 忽略 404 等未匹配路由
		if path == "" {
			return
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requests.WithLabelValues(c.Request.Method, path, status).Inc()
		m.duration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = auction.KindOf(err).String()
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) observeRejectedUpload(reason string) {
	m.uploadsRejected.WithLabelValues(reason).Inc()
}
