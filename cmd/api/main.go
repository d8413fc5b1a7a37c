package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"slink.local/internal/app/shortener"
	slcache "slink.local/internal/app/shortener/cache"
	shortenerhttpapi "slink.local/internal/app/shortener/httpapi"
	"slink.local/internal/platform/config"
	"slink.local/internal/platform/httpmiddleware"
	"slink.local/internal/platform/httpserver"
	"slink.local/internal/platform/kv"
	"slink.local/internal/platform/metrics"
	"slink.local/internal/platform/secret"
	"slink.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	slog.SetDefault(slog.New(h))

	// 存储
	store, errStore := kv.OpenBadger(kv.BadgerOptions{
		Path:          cfg.StoragePath,
		CacheSizeMB:   cfg.StorageCacheSizeMB,
		FlushInterval: cfg.StorageFlushInterval,
	})
	if errStore != nil {
		log.Fatal(errStore)
	}
	defer store.Close()
	slog.Info("存储已打开", "path", cfg.StoragePath)

	// 加密引擎：密钥加载/生成失败是致命错误，没有正确的密钥绝不能开始服务。
	engine, errKey := secret.New(cfg.KeyFile)
	if errKey != nil {
		log.Fatal(errKey)
	}
	slog.Info("加密引擎就绪", "key_file", cfg.KeyFile)

	// 读路径缓存
	localCache, errLocal := slcache.NewLocalCache(100000, 1<<24) // 10万条目，16MB
	if errLocal != nil {
		log.Fatal(errLocal)
	}
	defer localCache.Close()
	// 布隆过滤器 预期 100 万短码，1% 误判率
	bloomFilter := slcache.NewBloomFilter(1_000_000, 0.01)

	svc := shortener.NewService(store, engine, cfg.BaseURL, localCache, bloomFilter)

	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 30*time.Second)
	warmed, errWarm := svc.WarmFilter(warmCtx)
	cancelWarm()
	if errWarm != nil {
		log.Fatal(errWarm)
	}
	slog.Info("布隆过滤器预热完成", "codes", warmed)

	metrics.Init()

	var shutdown func(context.Context) error
	if cfg.TracingEnabled {
		shutdown = trace.Init(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.ReqID(),
		httpmiddleware.AccessLog(),
		httpmiddleware.Metrics(),
		httpmiddleware.CORS(cfg.CORSAllowedOrigin),
	)

	r.Route("/api/v1", func(api chi.Router) {
		shortenerhttpapi.RegisterAPIRoutes(api, svc)
	})
	shortenerhttpapi.RegisterPublicRoutes(r, svc)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 存储可用性检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		probeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := store.Get(probeCtx, []byte("readyz-probe")); err != nil && !errors.Is(err, kv.ErrNotFound) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("store not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("store ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := &http.Server{
		Addr:              cfg.AdminAddr, // 推荐：127.0.0.1:6060
		Handler:           adminMux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("服务启动", "addr", cfg.Addr, "base_url", cfg.BaseURL)

	errch := make(chan error, 2)

	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()

	err := <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}
