package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr              string
	IdleTimeout       time.Duration // 连接处理完一个请求后等待 IdleTimeout 后依旧没有请求，就会关闭此空闲连接
	ShutdownTimeout   time.Duration // 关闭服务的最长等待时间，超过后强制断开连接
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	// 日志配置信息
	LogLevel    slog.Level
	LogFormat   string
	ServiceName string

	PprofEnabled bool
	AdminAddr    string

	// BaseURL 用于拼接返回给用户的完整短链（例如 https://s.example.com/{code}）。
	// 不要带尾部斜杠。
	BaseURL string

	// 存储配置：Badger 数据目录、块缓存大小、后台落盘间隔。
	// 这两个参数只是运维旋钮，不影响写入的持久化语义（Put 成功即已落盘）。
	StoragePath          string
	StorageCacheSizeMB   int
	StorageFlushInterval time.Duration

	// 加密密钥文件路径（base64 文本，32 字节密钥）。
	// 文件不存在时首次启动会自动生成；删除或改写该文件会导致已存数据无法解密。
	KeyFile string

	OtlpGrpcEndpoint string
	OtlpServiceName  string
	TracingEnabled   bool

	// CORS
	CORSAllowedOrigin string
}

func Load() Config {
	cfg := Config{
		Addr:              ":9999",
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,

		LogLevel:    slog.LevelInfo,
		LogFormat:   "json",
		ServiceName: "slink-api",

		PprofEnabled: false,
		AdminAddr:    "127.0.0.1:6060",

		BaseURL: "http://127.0.0.1:9999",

		StoragePath:          "url_db",
		StorageCacheSizeMB:   64,
		StorageFlushInterval: time.Second,

		KeyFile: "encryption.key",

		OtlpGrpcEndpoint: "127.0.0.1:4317",
		OtlpServiceName:  "slink-api",
		TracingEnabled:   false,

		CORSAllowedOrigin: "http://localhost:3000",
	}

	_ = godotenv.Load(".env")

	if v, ok := os.LookupEnv("ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("IDLE_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.IdleTimeout = d
		}
	}
	if v, ok := os.LookupEnv("SHUTDOWN_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v, ok := os.LookupEnv("READ_HEADER_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReadHeaderTimeout = d
		}
	}
	if v, ok := os.LookupEnv("READ_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReadTimeout = d
		}
	}
	if v, ok := os.LookupEnv("WRITE_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WriteTimeout = d
		}
	}

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		switch strings.ToLower(v) {
		case "debug":
			cfg.LogLevel = slog.LevelDebug
		case "info":
			cfg.LogLevel = slog.LevelInfo
		case "warn", "warning":
			cfg.LogLevel = slog.LevelWarn
		case "error":
			cfg.LogLevel = slog.LevelError
		default:
			cfg.LogLevel = slog.LevelInfo
		}
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("SERVICE_NAME"); ok && v != "" {
		cfg.ServiceName = v
	}

	if v, ok := os.LookupEnv("PPROF_ENABLED"); ok && v != "" {
		cfg.PprofEnabled = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("ADMIN_ADDR"); ok && v != "" {
		cfg.AdminAddr = v
	}

	if v, ok := os.LookupEnv("BASE_URL"); ok && v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	if v, ok := os.LookupEnv("STORAGE_PATH"); ok && v != "" {
		cfg.StoragePath = v
	}
	if v, ok := os.LookupEnv("STORAGE_CACHE_SIZE_MB"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StorageCacheSizeMB = n
		}
	}
	if v, ok := os.LookupEnv("STORAGE_FLUSH_INTERVAL_MS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StorageFlushInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v, ok := os.LookupEnv("KEY_FILE"); ok && v != "" {
		cfg.KeyFile = v
	}

	if v, ok := os.LookupEnv("TRACING_ENABLED"); ok && v != "" {
		cfg.TracingEnabled = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("OTLP_GRPC_ENDPOINT"); ok && v != "" {
		cfg.OtlpGrpcEndpoint = v
	}
	if v, ok := os.LookupEnv("OTLP_SERVICE_NAME"); ok && v != "" {
		cfg.OtlpServiceName = v
	}

	if v, ok := os.LookupEnv("CORS_ALLOWED_ORIGIN"); ok && v != "" {
		cfg.CORSAllowedOrigin = v
	}

	return cfg
}
