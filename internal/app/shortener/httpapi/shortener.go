package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"slink.local/internal/app/shortener"
	"slink.local/internal/platform/metrics"
)

// 本包只做传输层工作：HTTP <-> 领域的翻译（参数绑定、错误映射、响应格式）。
// 领域逻辑都在 internal/app/shortener，存储/加密细节不出现在这里。

type ShortenRequest struct {
	URL         string `json:"url"`
	CustomAlias string `json:"custom_alias,omitempty"`
}

type ShortenResponse struct {
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	ShortURL    string `json:"short_url"`
}

func writeJSON(w http.ResponseWriter, status int, obj any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		slog.Error("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func NewShortenHandler(svc *shortener.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ShortenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.Shorten(r.Context(), req.URL, req.CustomAlias)
		switch {
		case err == nil:
			slog.Debug("url shortened", "code", result.ShortCode)
			writeJSON(w, http.StatusOK, ShortenResponse{
				ShortCode:   result.ShortCode,
				OriginalURL: result.OriginalURL,
				ShortURL:    result.ShortURL,
			})
		case errors.Is(err, shortener.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, "invalid URL format")
		case errors.Is(err, shortener.ErrInvalidAlias):
			writeError(w, http.StatusBadRequest, "invalid alias: 3-32 chars, letters/digits/-/_ only")
		case errors.Is(err, shortener.ErrAliasExists):
			writeError(w, http.StatusConflict, "alias is already taken")
		default:
			// 存储/加密细节只进日志，不回给调用方。
			slog.Error("shorten failed", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to shorten URL")
		}
	}
}

func NewRedirectHandler(svc *shortener.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		url, err := svc.Resolve(r.Context(), code)
		switch {
		case err == nil:
			metrics.RedirectsTotal.Inc()
			http.Redirect(w, r, url, http.StatusFound)
		case errors.Is(err, shortener.ErrNotFound):
			writeError(w, http.StatusNotFound, "URL not found")
		default:
			slog.Error("resolve failed", "code", code, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to retrieve URL")
		}
	}
}

func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
