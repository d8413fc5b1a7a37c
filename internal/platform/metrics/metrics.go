package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法，例如 GET/POST
	// - route：路由模板（用 pattern，例如 /api/v1/shorten，不要用带短码的真实 path，否则会产生无限 label）
	// - status：HTTP 状态码字符串，例如 "200"/"404"/"500"
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），
	// 按 Buckets 分桶累计，Prometheus/Grafana 用它算 P95/P99 延迟。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数（Gauge）。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// ShortenTotal：创建短链的结果分布。
	//
	// result 取值：
	// - minted：写入了新映射
	// - dedup：同一 URL 复用了已有短码
	// - alias_reuse：自定义别名 + 同一 URL 的幂等返回
	// - alias_conflict：别名被其它 URL 占用
	// - invalid：URL 或别名校验失败
	// - error：存储/加密失败
	ShortenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_shorten_total",
			Help: "创建短链请求的结果分布",
		},
		[]string{"result"},
	)

	// RedirectsTotal：短码解析成功并跳转的次数。
	RedirectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_redirects_total",
			Help: "短码跳转成功的总数",
		},
	)

	// CacheOperations：读路径缓存/布隆过滤器的命中情况。
	//
	// layer: local / bloom
	// op: hit / hit_negative / miss / reject
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_cache_operations_total",
			Help: "解析路径缓存操作统计",
		},
		[]string{"layer", "op"},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			ShortenTotal,
			RedirectsTotal,
			CacheOperations,
		)
	})
}
