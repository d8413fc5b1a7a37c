package httpmiddleware

import "net/http"

// responseWriter 包装 http.ResponseWriter，记录状态码和响应字节数，
// 供访问日志和指标中间件使用。
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	// 未显式调用 WriteHeader 时 net/http 默认返回 200。
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *responseWriter) Status() int { return w.status }

func (w *responseWriter) Size() int { return w.size }
