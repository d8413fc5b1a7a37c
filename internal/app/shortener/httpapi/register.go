package httpapi

import (
	"github.com/go-chi/chi/v5"

	"slink.local/internal/app/shortener"
)

// RegisterAPIRoutes 在给定分组（例如 /api/v1）下挂载 JSON API。
//
// 设计原因：
// - cmd/api 只负责组装和挂载，各业务模块自己提供 Register*Routes，避免路由散落在 main.go
func RegisterAPIRoutes(r chi.Router, svc *shortener.Service) {
	r.Post("/shorten", NewShortenHandler(svc))
	r.Get("/health", NewHealthHandler())
}

// RegisterPublicRoutes 在根路由上挂载跳转入口。
//
// 跳转刻意不放在 /api/v1 下：短链的使用体验是直接在浏览器输入 /{code}。
func RegisterPublicRoutes(r chi.Router, svc *shortener.Service) {
	r.Get("/{code}", NewRedirectHandler(svc))
}
