package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// EngineConfig names the client containers the Hadoop and Hive tools run in.
type EngineConfig struct {
	HadoopContainer string        `mapstructure:"hadoop_container"`
	HiveContainer   string        `mapstructure:"hive_container"`
	HdfsBin         string        `mapstructure:"hdfs_bin"`
	HadoopBin       string        `mapstructure:"hadoop_bin"`
	MapredBin       string        `mapstructure:"mapred_bin"`
	BeelineBin      string        `mapstructure:"beeline_bin"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type EvictionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type EmailConfig struct {
	From       string   `mapstructure:"from"`
	SMTPHost   string   `mapstructure:"smtp_host"`
	SMTPPort   int      `mapstructure:"smtp_port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	Recipients []string `mapstructure:"recipients"`
}

type Config struct {
	DatabaseURL string          `mapstructure:"database_url"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Temporal    TemporalConfig  `mapstructure:"temporal"`
	Engine      EngineConfig    `mapstructure:"engine"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Eviction    EvictionConfig  `mapstructure:"eviction"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Email       EmailConfig     `mapstructure:"email"`
}

// Load reads config.yaml from the current directory or ./config and
// applies REPLICATOR_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()

	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("REPLICATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Env-only deployments need the keys known up front.
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("eviction.enabled", true)
	v.SetDefault("metrics.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	config.applyDefaults()

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return nil, fmt.Errorf("database_url must be set")
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Temporal.HostPort == "" {
		c.Temporal.HostPort = "localhost:7233"
	}
	if c.Temporal.Namespace == "" {
		c.Temporal.Namespace = "default"
	}
	if c.Temporal.TaskQueue == "" {
		c.Temporal.TaskQueue = "REPLICATION"
	}
	if c.Engine.CommandTimeout <= 0 {
		c.Engine.CommandTimeout = 10 * time.Minute
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = 30 * time.Second
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 10
	}
	if c.Eviction.Schedule == "" {
		c.Eviction.Schedule = "@every 1h"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
}
