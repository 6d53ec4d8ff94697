package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Execution backends supported by the judge.
const (
	ExecutionBackendProcess = "process"
	ExecutionBackendDocker  = "docker"
)

// Config holds runtime configuration values for the judge service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	JWTSecret        string
	LogLevel         string
	LogFile          string
	DockerHost       string
	ExecutionBackend string
	ExecutionTimeout time.Duration
	CompileTimeout   time.Duration
	MaxConcurrent    int
	QueueSize        int
	QueueWait        time.Duration
	WorkspaceRoot    string
	MaxOutputBytes   int
	CodeRunMemoryMB  int
	CodeRunCPUShares int
	CodeRunPidsLimit int
	RunRateLimit     int
	CORSOrigins      []string
	Database         DatabasePoolConfig
	AutoSubmit       AutoSubmitConfig
}

// DatabasePoolConfig bounds the Postgres connection pool.
type DatabasePoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AutoSubmitConfig groups the deadline sweeper settings.
type AutoSubmitConfig struct {
	Enabled  bool
	Interval time.Duration
	LeaseTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Judge")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("execution.backend", ExecutionBackendProcess)
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("compile_timeout_ms", 15000)
	v.SetDefault("execution.max_concurrent", 4)
	v.SetDefault("execution.queue_size", 32)
	v.SetDefault("execution.queue_wait", "10s")
	v.SetDefault("execution.max_output_bytes", 1<<20)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("code_run_pids_limit", 64)
	v.SetDefault("judge.run_rate_limit", 10)
	v.SetDefault("autosubmit.enabled", true)
	v.SetDefault("autosubmit.interval", "1m")
	v.SetDefault("autosubmit.lease_ttl", "5m")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	queueWait, err := parseDuration(v, "execution.queue_wait", 10*time.Second)
	if err != nil {
		return Config{}, err
	}

	interval, err := parseDuration(v, "autosubmit.interval", time.Minute)
	if err != nil {
		return Config{}, err
	}

	leaseTTL, err := parseDuration(v, "autosubmit.lease_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	connLifetime, err := parseDuration(v, "database.conn_max_lifetime", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	compileMs := v.GetInt("compile_timeout_ms")
	if compileMs <= 0 {
		compileMs = 15000
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		LogLevel:         strings.ToLower(v.GetString("log.level")),
		LogFile:          v.GetString("log.file"),
		DockerHost:       v.GetString("docker_host"),
		ExecutionBackend: strings.ToLower(strings.TrimSpace(v.GetString("execution.backend"))),
		ExecutionTimeout: time.Duration(timeoutMs) * time.Millisecond,
		CompileTimeout:   time.Duration(compileMs) * time.Millisecond,
		MaxConcurrent:    v.GetInt("execution.max_concurrent"),
		QueueSize:        v.GetInt("execution.queue_size"),
		QueueWait:        queueWait,
		WorkspaceRoot:    v.GetString("execution.workspace_root"),
		MaxOutputBytes:   v.GetInt("execution.max_output_bytes"),
		CodeRunMemoryMB:  v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares: v.GetInt("code_run_cpu_shares"),
		CodeRunPidsLimit: v.GetInt("code_run_pids_limit"),
		RunRateLimit:     v.GetInt("judge.run_rate_limit"),
		CORSOrigins:      splitList(v.GetString("cors.allow_origins")),
		Database: DatabasePoolConfig{
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connLifetime,
		},
		AutoSubmit: AutoSubmitConfig{
			Enabled:  v.GetBool("autosubmit.enabled"),
			Interval: interval,
			LeaseTTL: leaseTTL,
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.ExecutionBackend {
	case ExecutionBackendProcess, ExecutionBackendDocker:
	default:
		return Config{}, fmt.Errorf("unknown execution backend %q", cfg.ExecutionBackend)
	}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}

	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 1 << 20
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	if cfg.CodeRunPidsLimit <= 0 {
		cfg.CodeRunPidsLimit = 64
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
