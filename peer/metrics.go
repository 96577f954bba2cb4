package peer

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var chunksServed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "peer_chunks_served_total",
	Help: "Chunk requests answered by the peer server, by status",
}, []string{"status"})

var peerFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "peer_fetches_total",
	Help: "Chunk fetches sent to other peers, by owner and status",
}, []string{"owner", "status"})

var reqDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "peer_http_request_duration_seconds",
	Help:    "A histogram of latencies for requests.",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
}, []string{"code", "method", "path"})

var resSz = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "peer_http_response_size_bytes",
	Help:    "A histogram of response sizes for requests.",
	Buckets: prometheus.ExponentialBuckets(100, 10, 8),
}, []string{"code", "method", "path"})

func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Path()
		if path == "/_health" {
			return next(c)
		}

		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			var httpError *echo.HTTPError
			if errors.As(err, &httpError) {
				status = httpError.Code
			}
			if status == 0 || status == http.StatusOK {
				status = http.StatusInternalServerError
			}
		}

		statusStr := strconv.Itoa(status)
		method := c.Request().Method
		reqDur.WithLabelValues(statusStr, method, path).Observe(time.Since(start).Seconds())
		resSz.WithLabelValues(statusStr, method, path).Observe(float64(c.Response().Size))

		return err
	}
}
