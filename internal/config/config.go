package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP   HTTPConfig   `yaml:"http"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Users  UsersConfig  `yaml:"users"`
	Issue  IssueConfig  `yaml:"issue"`
	Outbox OutboxConfig `yaml:"outbox"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MySQLConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	OrderPaidTopic    string   `yaml:"order_paid_topic"`
	CommandTopic      string   `yaml:"command_topic"`
	CommandReplyTopic string   `yaml:"command_reply_topic"`
	CommandGroupID    string   `yaml:"command_group_id"`
	OrderPaidGroupID  string   `yaml:"order_paid_group_id"`
}

type UsersConfig struct {
	BaseURL       string `yaml:"base_url"`
	TimeoutMillis int    `yaml:"timeout_millis"`
	Stub          bool   `yaml:"stub"`
}

type IssueConfig struct {
	AsyncEnabled    bool `yaml:"async_enabled"`
	QueueSize       int  `yaml:"queue_size"`
	Workers         int  `yaml:"workers"`
	OnePerUser      bool `yaml:"one_per_user"`
	CacheTTLSeconds int  `yaml:"cache_ttl_seconds"`
	LockWaitMillis  int  `yaml:"lock_wait_millis"`
	LockLeaseMillis int  `yaml:"lock_lease_millis"`
}

type OutboxConfig struct {
	PollIntervalMillis int `yaml:"poll_interval_millis"`
	BatchSize          int `yaml:"batch_size"`
	MaxRetries         int `yaml:"max_retries"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/coupons?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifeMins: 5,
		},
		Redis: RedisConfig{Addr: "localhost:6379", PoolSize: 100},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			OrderPaidTopic:    "order-paid",
			CommandTopic:      "coupon-command",
			CommandReplyTopic: "coupon-command-reply",
			CommandGroupID:    "coupon-command-worker",
			OrderPaidGroupID:  "coupon-order-paid-worker",
		},
		Users: UsersConfig{BaseURL: "http://localhost:8081", TimeoutMillis: 2000, Stub: false},
		Issue: IssueConfig{
			AsyncEnabled:    true,
			QueueSize:       10000,
			Workers:         10,
			OnePerUser:      true,
			CacheTTLSeconds: 30,
			LockWaitMillis:  2000,
			LockLeaseMillis: 5000,
		},
		Outbox: OutboxConfig{PollIntervalMillis: 2000, BatchSize: 100, MaxRetries: 5},
	}
}

// Load reads the yaml file when present and applies environment overrides
// for the addresses that differ per deployment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		cfg.MySQL.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	return cfg, nil
}

func (c *MySQLConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

func (c *UsersConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c *IssueConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *IssueConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMillis) * time.Millisecond
}

func (c *IssueConfig) LockLease() time.Duration {
	return time.Duration(c.LockLeaseMillis) * time.Millisecond
}

func (c *OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}
