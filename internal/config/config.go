package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Storage backends. The otlp backend exports through an OpenTelemetry
// collector and reads back from ClickHouse.
const (
	BackendOTLP     = "otlp"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Container runtime access modes for log-store discovery.
const (
	DockerModeAPI = "api"
	DockerModeCLI = "cli"
)

// Agent runner modes for the demo.
const (
	AgentModeLocal  = "local"
	AgentModeDocker = "docker"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Backend    string
	Telemetry  TelemetryConfig
	Fetch      FetchConfig
	Docker     DockerConfig
	ClickHouse ClickHouseConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Agent      AgentConfig
	Server     ServerConfig
}

// TelemetryConfig controls the emitter side.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// CheckEndpoint reports whether Endpoint is an absolute URL the OTLP
// exporter can dial.
func (t TelemetryConfig) CheckEndpoint() error {
	u, err := url.Parse(t.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT must be an absolute URL, got %q", t.Endpoint)
	}
	return nil
}

// FetchConfig controls transcript reconstruction.
type FetchConfig struct {
	OutputDir     string
	MaxQueryBytes int64
	QueryTimeout  time.Duration
}

// DockerConfig selects how the container runtime is reached.
type DockerConfig struct {
	Host string
	Mode string
}

// ClickHouseConfig locates the log store. Addr switches from container exec
// to a direct native-protocol connection.
type ClickHouseConfig struct {
	Container   string
	Image       string
	Label       string
	NamePattern string
	Table       string
	Addr        string
	Database    string
	User        string
	Password    string //nolint:gosec // connection config
	DialTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // Redis connection config
	DB       int
}

// AgentConfig drives the demo agent runner.
type AgentConfig struct {
	Mode         string
	Binary       string
	Image        string
	MaxTurns     int
	AllowedTools []string
	CPULimit     string
	MemLimit     string
	PassEnv      []string
	DemoTools    bool
}

// ServerConfig drives the transcript HTTP API.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    int
	RateBurst    int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	maxQueryBytes, err := getEnvInt64("TRAJLOG_MAX_QUERY_BYTES", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	queryTimeout, err := getEnvDuration("TRAJLOG_QUERY_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dialTimeout, err := getEnvDuration("TRAJLOG_CLICKHOUSE_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("TRAJLOG_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("TRAJLOG_SERVER_WRITE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimit, err := getEnvInt("TRAJLOG_SERVER_RATE_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("TRAJLOG_SERVER_RATE_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("TRAJLOG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("TRAJLOG_DB_MAX_CONNS", 4)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("TRAJLOG_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxTurns, err := getEnvInt("TRAJLOG_AGENT_MAX_TURNS", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	demoTools, err := getEnvBool("TRAJLOG_AGENT_DEMO_TOOLS", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Backend: strings.ToLower(getEnv("TRAJLOG_BACKEND", BackendOTLP)),
		Telemetry: TelemetryConfig{
			Enabled:     getEnvFlag("CLAUDE_CODE_ENABLE_TELEMETRY"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317"),
			ServiceName: getEnv("TRAJLOG_SERVICE_NAME", "demo-agent"),
		},
		Fetch: FetchConfig{
			OutputDir:     getEnv("TRAJLOG_OUTPUT_DIR", "."),
			MaxQueryBytes: maxQueryBytes,
			QueryTimeout:  queryTimeout,
		},
		Docker: DockerConfig{
			Host: getEnv("TRAJLOG_DOCKER_HOST", ""),
			Mode: strings.ToLower(getEnv("TRAJLOG_DOCKER_MODE", DockerModeAPI)),
		},
		ClickHouse: ClickHouseConfig{
			Container:   getEnv("CLICKHOUSE_CONTAINER", ""),
			Image:       getEnv("TRAJLOG_CLICKHOUSE_IMAGE", "clickhouse/clickstack-all-in-one"),
			Label:       getEnv("TRAJLOG_CLICKHOUSE_LABEL", ""),
			NamePattern: getEnv("TRAJLOG_CLICKHOUSE_NAME_PATTERN", "clickstack"),
			Table:       getEnv("TRAJLOG_CLICKHOUSE_TABLE", "otel_logs"),
			Addr:        getEnv("TRAJLOG_CLICKHOUSE_ADDR", ""),
			Database:    getEnv("TRAJLOG_CLICKHOUSE_DATABASE", "default"),
			User:        getEnv("TRAJLOG_CLICKHOUSE_USER", "default"),
			Password:    getEnv("TRAJLOG_CLICKHOUSE_PASSWORD", ""),
			DialTimeout: dialTimeout,
		},
		Database: DatabaseConfig{
			Host:     getEnv("TRAJLOG_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("TRAJLOG_DB_USER", "trajlog"),
			Password: getEnv("TRAJLOG_DB_PASSWORD", ""),
			DBName:   getEnv("TRAJLOG_DB_NAME", "trajlog"),
			SSLMode:  getEnv("TRAJLOG_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("TRAJLOG_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("TRAJLOG_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Agent: AgentConfig{
			Mode:         strings.ToLower(getEnv("TRAJLOG_AGENT_MODE", AgentModeLocal)),
			Binary:       getEnv("TRAJLOG_AGENT_BINARY", "claude"),
			Image:        getEnv("TRAJLOG_AGENT_IMAGE", "ghcr.io/gosuda/aira-claude:latest"),
			MaxTurns:     maxTurns,
			AllowedTools: getEnvList("TRAJLOG_AGENT_ALLOWED_TOOLS", nil),
			CPULimit:     getEnv("TRAJLOG_AGENT_CPU_LIMIT", "1"),
			MemLimit:     getEnv("TRAJLOG_AGENT_MEM_LIMIT", "2g"),
			PassEnv:      getEnvList("TRAJLOG_AGENT_PASS_ENV", []string{"ANTHROPIC_API_KEY"}),
			DemoTools:    demoTools,
		},
		Server: ServerConfig{
			Addr:         getEnv("TRAJLOG_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			RateLimit:    rateLimit,
			RateBurst:    rateBurst,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks enumerations and value bounds.
func (c *Config) validate() error {
	if !slices.Contains([]string{BackendOTLP, BackendPostgres, BackendRedis}, c.Backend) {
		return fmt.Errorf("TRAJLOG_BACKEND must be one of otlp, postgres, redis, got %q", c.Backend)
	}
	if !slices.Contains([]string{DockerModeAPI, DockerModeCLI}, c.Docker.Mode) {
		return fmt.Errorf("TRAJLOG_DOCKER_MODE must be api or cli, got %q", c.Docker.Mode)
	}
	if !slices.Contains([]string{AgentModeLocal, AgentModeDocker}, c.Agent.Mode) {
		return fmt.Errorf("TRAJLOG_AGENT_MODE must be local or docker, got %q", c.Agent.Mode)
	}

	if c.Telemetry.ServiceName == "" {
		return errors.New("TRAJLOG_SERVICE_NAME must not be empty")
	}

	if c.Fetch.MaxQueryBytes <= 0 {
		return fmt.Errorf("TRAJLOG_MAX_QUERY_BYTES must be positive, got %d", c.Fetch.MaxQueryBytes)
	}
	if c.Fetch.QueryTimeout <= 0 {
		return fmt.Errorf("TRAJLOG_QUERY_TIMEOUT must be positive, got %s", c.Fetch.QueryTimeout)
	}
	if c.ClickHouse.DialTimeout <= 0 {
		return fmt.Errorf("TRAJLOG_CLICKHOUSE_DIAL_TIMEOUT must be positive, got %s", c.ClickHouse.DialTimeout)
	}

	if c.Backend == BackendPostgres && c.Database.SSLMode == "disable" {
		log.Warn().Msg("TRAJLOG_DB_SSLMODE=disable is insecure for shared databases; set to 'require' or 'verify-full'")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("TRAJLOG_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("TRAJLOG_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("TRAJLOG_AGENT_MAX_TURNS must be >= 1, got %d", c.Agent.MaxTurns)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("TRAJLOG_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("TRAJLOG_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("TRAJLOG_SERVER_RATE_LIMIT must be >= 1, got %d", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		return fmt.Errorf("TRAJLOG_SERVER_RATE_BURST must be >= 1, got %d", c.Server.RateBurst)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int64: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

// getEnvFlag treats any non-empty value other than 0 or false as set.
func getEnvFlag(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v != "" && v != "0" && v != "false"
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
