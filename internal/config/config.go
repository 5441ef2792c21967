// Package config provides configuration management for the judge service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the judge service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the connection string in lib/pq keyword form.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SandboxConfig holds the isolate driver settings and the process-wide
// defaults applied to submissions that leave a limit unset.
type SandboxConfig struct {
	IsolateBinary string `mapstructure:"isolate_binary"`
	BoxRoot       string `mapstructure:"box_root"`

	CPUTimeLimit  float64 `mapstructure:"cpu_time_limit"`  // seconds
	CPUExtraTime  float64 `mapstructure:"cpu_extra_time"`  // seconds
	WallTimeLimit float64 `mapstructure:"wall_time_limit"` // seconds
	MemoryLimit   int     `mapstructure:"memory_limit"`    // KB
	MaxProcesses  int     `mapstructure:"max_processes"`
	MaxFileSize   int     `mapstructure:"max_file_size"` // KB
	NumberOfRuns  int     `mapstructure:"number_of_runs"`

	EnablePerProcessTimeLimit   bool `mapstructure:"enable_per_process_time_limit"`
	EnablePerProcessMemoryLimit bool `mapstructure:"enable_per_process_memory_limit"`
	RedirectStderrToStdout      bool `mapstructure:"redirect_stderr_to_stdout"`
	EnableNetwork               bool `mapstructure:"enable_network"`
}

// RateLimitConfig holds request admission configuration.
type RateLimitConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	PerMinute int    `mapstructure:"per_minute"`
	PerHour   int    `mapstructure:"per_hour"`
	Strategy  string `mapstructure:"strategy"` // "fixed-window" or "sliding-window"
}

// WorkerConfig holds worker process configuration. BoxID forces a
// specific isolate box; -1 derives one from the worker name or the
// box root.
type WorkerConfig struct {
	Name        string        `mapstructure:"name"`
	BoxID       int           `mapstructure:"box_id"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "kodejudge")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "kodejudge")

	v.SetDefault("sandbox.isolate_binary", "/usr/local/bin/isolate")
	v.SetDefault("sandbox.box_root", "/var/local/lib/isolate")
	v.SetDefault("sandbox.cpu_time_limit", 2.0)
	v.SetDefault("sandbox.cpu_extra_time", 0.5)
	v.SetDefault("sandbox.wall_time_limit", 5.0)
	v.SetDefault("sandbox.memory_limit", 128000)
	v.SetDefault("sandbox.max_processes", 128)
	v.SetDefault("sandbox.max_file_size", 10240)
	v.SetDefault("sandbox.number_of_runs", 1)
	v.SetDefault("sandbox.enable_per_process_time_limit", false)
	v.SetDefault("sandbox.enable_per_process_memory_limit", false)
	v.SetDefault("sandbox.redirect_stderr_to_stdout", false)
	v.SetDefault("sandbox.enable_network", false)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.per_minute", 20)
	v.SetDefault("ratelimit.per_hour", 100)
	v.SetDefault("ratelimit.strategy", "fixed-window")

	v.SetDefault("worker.name", "worker-0")
	v.SetDefault("worker.box_id", -1)
	v.SetDefault("worker.poll_timeout", 5*time.Second)
	v.SetDefault("worker.heartbeat", 15*time.Second)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/kodejudge")
	}

	// Read environment variables
	v.SetEnvPrefix("JUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
