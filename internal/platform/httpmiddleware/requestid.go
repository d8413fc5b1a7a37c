package httpmiddleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const requestIDHeader = "X-Request-ID"

// ReqID 确保每个请求都有 X-Request-ID：调用方没带就生成一个，
// 并在响应头里回显，方便日志关联排查。
func ReqID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = GenerateReqID()
				if id == "" {
					id = strconv.FormatInt(time.Now().UnixNano(), 10)
				}
				r.Header.Set(requestIDHeader, id)
			}
			w.Header().Set(requestIDHeader, id)

			next.ServeHTTP(w, r)
		})
	}
}

func GenerateReqID() string {
	src := make([]byte, 16)
	if _, err := rand.Read(src); err != nil {
		return ""
	}
	return hex.EncodeToString(src) // 32 个十六进制字符
}
