package httpmiddleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"slink.local/internal/platform/metrics"
)

func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.HTTPInflightRequests.Inc()       //正在处理的请求数+1
			defer metrics.HTTPInflightRequests.Dec() //请求处理结束

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			// 路由模板要等 chi 完成匹配后才拿得到，所以在 next 之后取。
			routePattern := "UNMATCHED"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				routePattern = rctx.RoutePattern()
			}

			duration := time.Since(start).Seconds()
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, routePattern, strconv.Itoa(rw.Status())).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, routePattern).Observe(duration)
		})
	}
}
