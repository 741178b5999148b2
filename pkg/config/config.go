package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port string `mapstructure:"port"`

	// HistoryLimit 最近訊息視窗上限
	HistoryLimit   int           `mapstructure:"history_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	JWTSecret      string        `mapstructure:"jwt_secret"`

	// PostLimit REST 發訊息每分鐘上限 (per user)
	PostLimit int `mapstructure:"post_limit"`

	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
	// Addr 單機位址, 空值時走 sentinel (.env REDIS_SENTINEL*)
	Addr string `mapstructure:"addr"`
	// Relay 開啟跨節點廣播
	Relay bool `mapstructure:"relay"`
}

// KafkaConfig definition kafka activity sink
type KafkaConfig struct {
	Enable        bool     `mapstructure:"enable"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

const (
	defaultPort           = "8082"
	defaultHistoryLimit   = 100
	defaultSendBuffer     = 256
	defaultPingInterval   = 30 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 4096
	defaultPostLimit      = 60
	defaultKafkaTopic     = "chat.activity"
)

// Sanitize fill zero value with default
func (c *Chat) Sanitize() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.PostLimit <= 0 {
		c.PostLimit = defaultPostLimit
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultKafkaTopic
	}
}
