package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Inventory InventoryConfig
	Order     OrderConfig
	Bulk      BulkConfig
	Invoice   InvoiceConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type AppConfig struct {
	Name     string
	Env      string
	HTTPPort string
	GRPCPort string
}

type StorageConfig struct {
	Driver string // mysql or memory
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type InventoryConfig struct {
	MaxQuantity int
}

type OrderConfig struct {
	ReferenceAttempts int
}

type BulkConfig struct {
	MaxRows int
}

type InvoiceConfig struct {
	Addr            string
	Timeout         time.Duration
	LockTTL         time.Duration
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration with the following priority (highest first):
// POS_ prefixed environment variables, config.toml, built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			HTTPPort: v.GetString("app.http_port"),
			GRPCPort: v.GetString("app.grpc_port"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			PoolSize: v.GetInt("redis.pool_size"),
		},
		Inventory: InventoryConfig{
			MaxQuantity: v.GetInt("inventory.max_quantity"),
		},
		Order: OrderConfig{
			ReferenceAttempts: v.GetInt("order.reference_attempts"),
		},
		Bulk: BulkConfig{
			MaxRows: v.GetInt("bulk.max_rows"),
		},
		Invoice: InvoiceConfig{
			Addr:            v.GetString("invoice.addr"),
			Timeout:         v.GetDuration("invoice.timeout"),
			LockTTL:         v.GetDuration("invoice.lock_ttl"),
			BreakerTimeout:  v.GetDuration("invoice.breaker_timeout"),
			BreakerFailures: v.GetUint32("invoice.breaker_failures"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pos-backoffice"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.HTTPPort == "" {
		cfg.App.HTTPPort = "8080"
	}
	if cfg.App.GRPCPort == "" {
		cfg.App.GRPCPort = "50051"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageMySQL
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "root"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "pos"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 100
	}
	if cfg.Inventory.MaxQuantity == 0 {
		cfg.Inventory.MaxQuantity = 1000
	}
	if cfg.Order.ReferenceAttempts == 0 {
		cfg.Order.ReferenceAttempts = 10
	}
	if cfg.Bulk.MaxRows == 0 {
		cfg.Bulk.MaxRows = 5000
	}
	if cfg.Invoice.Addr == "" {
		cfg.Invoice.Addr = "localhost:50061"
	}
	if cfg.Invoice.Timeout == 0 {
		cfg.Invoice.Timeout = 5 * time.Second
	}
	if cfg.Invoice.LockTTL == 0 {
		cfg.Invoice.LockTTL = 30 * time.Second
	}
	if cfg.Invoice.BreakerTimeout == 0 {
		cfg.Invoice.BreakerTimeout = 30 * time.Second
	}
	if cfg.Invoice.BreakerFailures == 0 {
		cfg.Invoice.BreakerFailures = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageMySQL, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Inventory.MaxQuantity < 0 {
		return fmt.Errorf("inventory.max_quantity must be positive, got %d", c.Inventory.MaxQuantity)
	}
	if c.Order.ReferenceAttempts < 0 {
		return fmt.Errorf("order.reference_attempts must be positive, got %d", c.Order.ReferenceAttempts)
	}
	if c.Bulk.MaxRows < 0 {
		return fmt.Errorf("bulk.max_rows must be positive, got %d", c.Bulk.MaxRows)
	}
	if c.Invoice.Timeout < 0 {
		return fmt.Errorf("invoice.timeout must be positive, got %s", c.Invoice.Timeout)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
