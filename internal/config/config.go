package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/groupwatch/group-indexer/internal/store"
)

// EnvPrefix prefixes every environment variable read by the loaders
const EnvPrefix = "GROUP_INDEXER"

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`       // mysql, postgres, sqlite or file
	FilePath    string `mapstructure:"file_path"`    // directory of the local file backend
	Fallback    bool   `mapstructure:"fallback"`     // use the file backend when the database is unreachable
	AutoMigrate bool   `mapstructure:"auto_migrate"` // create missing tables on startup
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadHost        string        `mapstructure:"read_host"`
	ReadPort        int           `mapstructure:"read_port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`            // postgres only
	Charset         string        `mapstructure:"charset"`            // mysql only
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`    // dial timeout used by the startup ping
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	ConsumerName   string        `mapstructure:"consumer_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
	AckWait        time.Duration `mapstructure:"ack_wait"`
	MaxDeliver     int           `mapstructure:"max_deliver"`
}

type TelegramConfig struct {
	Token          string  `mapstructure:"token"`
	Debug          bool    `mapstructure:"debug"`
	AllowedChatIDs []int64 `mapstructure:"allowed_chat_ids"`
	UpdateTimeout  int     `mapstructure:"update_timeout"` // in seconds
}

type PipelineConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type ProcessingConfig struct {
	ClassifierRulesPath string   `mapstructure:"classifier_rules_path"` // empty uses the built-in rules
	SanitizerPatterns   []string `mapstructure:"sanitizer_patterns"`    // extra noise patterns removed before extraction
	MinDigits           int      `mapstructure:"min_digits"`
	MaxDigits           int      `mapstructure:"max_digits"`
	Labels              []string `mapstructure:"labels"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

type WorkerConfig struct {
	WorkerPoolSize  int `mapstructure:"pool_size"`
	WorkerQueueSize int `mapstructure:"queue_size"`
}

type IndexerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Processing ProcessingConfig `mapstructure:"processing"`
}

type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Database   DatabaseConfig `mapstructure:"database"`
}

type ListenerConfig struct {
	BaseConfig    `mapstructure:",squash"`
	NATS          NATSConfig     `mapstructure:"nats"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
	StatsInterval time.Duration  `mapstructure:"stats_interval"`
}

type CtlConfig struct {
	BaseConfig `mapstructure:",squash"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Processing ProcessingConfig `mapstructure:"processing"`
}

func setStorageDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", store.DriverMySQL)
	v.SetDefault("storage.file_path", "data/")
	v.SetDefault("storage.fallback", true)
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.dbname", "group_indexer")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.connect_timeout", "5s")
}

func setPipelineDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.max_attempts", 5)
	v.SetDefault("pipeline.initial_backoff", "50ms")
	v.SetDefault("pipeline.max_backoff", "2s")
	v.SetDefault("processing.min_digits", 5)
	v.SetDefault("processing.max_digits", 11)
}

func setNATSDefaults(v *viper.Viper, connectionName string) {
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "GROUP_OBSERVATIONS")
	v.SetDefault("nats.connection_name", connectionName)
}

// readConfig reads the config file when present; a missing file leaves defaults and env vars
func readConfig(v *viper.Viper, out interface{}) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

func LoadIndexerConfig(configFile string, envPath string) (*IndexerConfig, error) {
	v := configureViper("indexer", configFile, envPath)

	setStorageDefaults(v)
	setPipelineDefaults(v)
	setNATSDefaults(v, "group-indexer")
	v.SetDefault("nats.consumer_name", "group-indexer")
	v.SetDefault("nats.ack_wait", "30s")
	v.SetDefault("nats.max_deliver", 5)
	v.SetDefault("worker.pool_size", 8)
	v.SetDefault("worker.queue_size", 256)

	var config IndexerConfig
	if err := readConfig(v, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	setStorageDefaults(v)
	v.SetDefault("storage.auto_migrate", false)

	var config APIConfig
	if err := readConfig(v, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func LoadListenerConfig(configFile string, envPath string) (*ListenerConfig, error) {
	v := configureViper("listener", configFile, envPath)

	setNATSDefaults(v, "group-listener")
	v.SetDefault("telegram.update_timeout", 60)
	v.SetDefault("stats_interval", "5m")

	var config ListenerConfig
	if err := readConfig(v, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func LoadCtlConfig(configFile string, envPath string) (*CtlConfig, error) {
	v := configureViper("groupctl", configFile, envPath)

	setStorageDefaults(v)
	setPipelineDefaults(v)

	var config CtlConfig
	if err := readConfig(v, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/indexer/, cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		// Storage
		"storage.driver",
		"storage.file_path",
		"storage.fallback",
		"storage.auto_migrate",
		// Database
		"database.host",
		"database.port",
		"database.read_host",
		"database.read_port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.charset",
		"database.connect_timeout",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.consumer_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.ack_wait",
		"nats.max_deliver",
		// Telegram
		"telegram.token",
		"telegram.debug",
		"telegram.allowed_chat_ids",
		"telegram.update_timeout",
		// Pipeline
		"pipeline.max_attempts",
		"pipeline.initial_backoff",
		"pipeline.max_backoff",
		// Processing
		"processing.classifier_rules_path",
		"processing.sanitizer_patterns",
		"processing.min_digits",
		"processing.max_digits",
		"processing.labels",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Internal Worker config
		"worker.pool_size",
		"worker.queue_size",
		// Listener
		"stats_interval",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the primary database connection string for driver
func (c *DatabaseConfig) DSN(driver string) string {
	return c.dsn(driver, c.Host, c.Port)
}

// ReadDSN returns the read-replica database connection string.
// Returns an empty string when no read host is configured.
// If ReadPort is not configured, it falls back to Port.
func (c *DatabaseConfig) ReadDSN(driver string) string {
	if c.ReadHost == "" {
		return ""
	}

	port := c.ReadPort
	if port == 0 {
		port = c.Port
	}

	return c.dsn(driver, c.ReadHost, port)
}

func (c *DatabaseConfig) dsn(driver, host string, port int) string {
	switch driver {
	case store.DriverMySQL:
		params := url.Values{}
		params.Set("charset", c.Charset)
		params.Set("parseTime", "true")
		params.Set("loc", "UTC")
		if c.ConnectTimeout > 0 {
			params.Set("timeout", c.ConnectTimeout.String())
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			c.User, c.Password, host, port, c.DBName, params.Encode())
	case store.DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			host, port, c.User, c.Password, c.DBName, c.SSLMode)
		if c.ConnectTimeout > 0 {
			dsn += fmt.Sprintf(" connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
		}
		return dsn
	case store.DriverSQLite:
		return c.DBName
	default:
		return ""
	}
}

// StoreConfig assembles the storage backend configuration
func StoreConfig(debug bool, s StorageConfig, db DatabaseConfig) store.Config {
	return store.Config{
		Driver:          s.Driver,
		DSN:             db.DSN(s.Driver),
		ReadDSN:         db.ReadDSN(s.Driver),
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
		FilePath:        s.FilePath,
		Fallback:        s.Fallback,
		AutoMigrate:     s.AutoMigrate,
		Debug:           debug,
	}
}
