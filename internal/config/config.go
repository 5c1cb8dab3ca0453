package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// Config はアプリケーション設定を表す
type Config struct {
	Env      string
	LogLevel string
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Booking  BookingConfig
	Harness  HarnessConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// 両方設定されている場合のみ /metrics に Basic 認証をかける
	MetricsUser     string
	MetricsPassword string
}

// StoreConfig は永続化バックエンドの選択
type StoreConfig struct {
	Backend          string // memory, postgres, mysql, mongo
	LockStrategy     string // blocking, conditional
	OperationTimeout time.Duration
	MigrationsPath   string
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Driver   string // postgres, mysql
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	// 起動直後のデータベースを待つための接続試行回数
	ConnectRetries int
}

// MongoConfig はMongoDB設定
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// AMQPConfig はRabbitMQ設定。URL が空の場合は通知を送らない
type AMQPConfig struct {
	URL   string
	Queue string
}

// BookingConfig は予約ルールの設定
type BookingConfig struct {
	LoyaltyThreshold int
	LoyaltyRate      decimal.Decimal
	HoldTTL          time.Duration
	CleanupInterval  time.Duration
	SeatLockTTL      time.Duration
}

// HarnessConfig は負荷シミュレーションの設定
type HarnessConfig struct {
	EventID      string
	Workers      int
	Attempts     int
	MaxItems     int
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	Selection    string // random, round_robin, claim
	Tickets      int
	Users        int
	SeatWorkers  int
	SeatAttempts int
}

// Load は環境変数から設定を読み込む
func Load() *Config {
	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

			MetricsUser:     getEnv("METRICS_USER", ""),
			MetricsPassword: getEnv("METRICS_PASSWORD", ""),
		},
		Store: StoreConfig{
			Backend:          getEnv("STORE_BACKEND", "memory"),
			LockStrategy:     getEnv("STORE_LOCK_STRATEGY", "blocking"),
			OperationTimeout: getDurationEnv("STORE_OPERATION_TIMEOUT", 5*time.Second),
			MigrationsPath:   getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", ""),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ticket_booking"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			ConnectRetries: getIntEnv("DB_CONNECT_RETRIES", 5),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			Database: getEnv("MONGO_DATABASE", "ticket_booking"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_QUEUE", "booking.confirmed"),
		},
		Booking: BookingConfig{
			LoyaltyThreshold: getIntEnv("BOOKING_LOYALTY_THRESHOLD", 5),
			LoyaltyRate:      getDecimalEnv("BOOKING_LOYALTY_RATE", decimal.NewFromFloat(0.05)),
			HoldTTL:          getDurationEnv("BOOKING_HOLD_TTL", 15*time.Minute),
			CleanupInterval:  getDurationEnv("BOOKING_CLEANUP_INTERVAL", time.Minute),
			SeatLockTTL:      getDurationEnv("SEAT_LOCK_TTL", 10*time.Second),
		},
		Harness: HarnessConfig{
			EventID:      getEnv("HARNESS_EVENT_ID", "simulation"),
			Workers:      getIntEnv("HARNESS_WORKERS", 50),
			Attempts:     getIntEnv("HARNESS_ATTEMPTS", 1),
			MaxItems:     getIntEnv("HARNESS_MAX_ITEMS", 2),
			Timeout:      getDurationEnv("HARNESS_TIMEOUT", 3*time.Minute),
			Retries:      getIntEnv("HARNESS_RETRIES", 0),
			RetryBackoff: getDurationEnv("HARNESS_RETRY_BACKOFF", 10*time.Millisecond),
			Selection:    getEnv("HARNESS_SELECTION", "random"),
			Tickets:      getIntEnv("HARNESS_TICKETS", 100),
			Users:        getIntEnv("HARNESS_USERS", 500),
			SeatWorkers:  getIntEnv("HARNESS_SEAT_WORKERS", 5),
			SeatAttempts: getIntEnv("HARNESS_SEAT_ATTEMPTS", 100),
		},
	}

	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.Database.applyURL(raw)
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		cfg.Redis.applyURL(raw)
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = cfg.Database.defaultPort()
	}
	return cfg
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// MySQLDSN はMySQL接続文字列を返す
func (c *DatabaseConfig) MySQLDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, c.Port)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.MultiStatements = true
	return mc.FormatDSN()
}

// DataSource はドライバーに応じた接続文字列を返す
func (c *DatabaseConfig) DataSource() string {
	if c.Driver == "mysql" {
		return c.MySQLDSN()
	}
	return c.DSN()
}

func (c *DatabaseConfig) defaultPort() string {
	if c.Driver == "mysql" {
		return "3306"
	}
	return "5432"
}

// applyURL は DATABASE_URL 形式の接続情報で上書きする
func (c *DatabaseConfig) applyURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	switch u.Scheme {
	case "mysql":
		c.Driver = "mysql"
	case "postgres", "postgresql":
		c.Driver = "postgres"
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	c.DBName = strings.TrimPrefix(u.Path, "/")
	c.SSLMode = u.Query().Get("sslmode")
	if c.SSLMode == "" {
		c.SSLMode = "require"
	}
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// applyURL は REDIS_URL 形式の接続情報で上書きする。URL の指定は Redis を有効にする
func (c *RedisConfig) applyURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	c.Enabled = true
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.DB = n
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
