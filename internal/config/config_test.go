package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/store"
)

func writeConfigFile(t *testing.T, content string) string {
	tmpDir := t.TempDir()
	if content == "" {
		return filepath.Join(tmpDir, "nonexistent.yaml")
	}

	configFile := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(content), 0600)
	require.NoError(t, err)
	return configFile
}

func TestLoadIndexerConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *IndexerConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
storage:
  driver: postgres
  file_path: /var/lib/groups
  fallback: false
database:
  host: db.internal
  port: 5432
  user: indexer
  password: secret
  dbname: groups
nats:
  url: "nats://nats:4222"
  stream_name: "TEST_STREAM"
  consumer_name: "test-consumer"
  max_deliver: 9
worker:
  pool_size: 4
  queue_size: 64
pipeline:
  max_attempts: 7
  initial_backoff: 10ms
processing:
  classifier_rules_path: config/rules.yaml
  sanitizer_patterns: ["\\[广告\\]"]
  labels: ["群号", "group"]
`,
			validate: func(t *testing.T, cfg *IndexerConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, store.DriverPostgres, cfg.Storage.Driver)
				assert.Equal(t, "/var/lib/groups", cfg.Storage.FilePath)
				assert.False(t, cfg.Storage.Fallback)
				assert.True(t, cfg.Storage.AutoMigrate)
				assert.Equal(t, "db.internal", cfg.Database.Host)
				assert.Equal(t, "indexer", cfg.Database.User)
				assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
				assert.Equal(t, "TEST_STREAM", cfg.NATS.StreamName)
				assert.Equal(t, "test-consumer", cfg.NATS.ConsumerName)
				assert.Equal(t, 9, cfg.NATS.MaxDeliver)
				assert.Equal(t, 4, cfg.Worker.WorkerPoolSize)
				assert.Equal(t, 64, cfg.Worker.WorkerQueueSize)
				assert.Equal(t, 7, cfg.Pipeline.MaxAttempts)
				assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.InitialBackoff)
				assert.Equal(t, 2*time.Second, cfg.Pipeline.MaxBackoff)
				assert.Equal(t, "config/rules.yaml", cfg.Processing.ClassifierRulesPath)
				assert.Equal(t, []string{`\[广告\]`}, cfg.Processing.SanitizerPatterns)
				assert.Equal(t, []string{"群号", "group"}, cfg.Processing.Labels)
			},
		},
		{
			name:       "defaults without config file",
			configFile: "",
			validate: func(t *testing.T, cfg *IndexerConfig) {
				assert.Equal(t, store.DriverMySQL, cfg.Storage.Driver)
				assert.Equal(t, "data/", cfg.Storage.FilePath)
				assert.True(t, cfg.Storage.Fallback)
				assert.Equal(t, 3306, cfg.Database.Port)
				assert.Equal(t, "utf8mb4", cfg.Database.Charset)
				assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
				assert.Equal(t, "GROUP_OBSERVATIONS", cfg.NATS.StreamName)
				assert.Equal(t, "group-indexer", cfg.NATS.ConsumerName)
				assert.Equal(t, 30*time.Second, cfg.NATS.AckWait)
				assert.Equal(t, 5, cfg.NATS.MaxDeliver)
				assert.Equal(t, 8, cfg.Worker.WorkerPoolSize)
				assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
				assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.InitialBackoff)
				assert.Equal(t, 5, cfg.Processing.MinDigits)
				assert.Equal(t, 11, cfg.Processing.MaxDigits)
			},
		},
		{
			name: "invalid value",
			configFile: `
database:
  port: invalid
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadIndexerConfig(writeConfigFile(t, tt.configFile), t.TempDir())

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadAPIConfig(t *testing.T) {
	configFile := writeConfigFile(t, `
server:
  port: 9090
storage:
  driver: file
  file_path: /tmp/groups
`)

	cfg, err := LoadAPIConfig(configFile, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.ReadTimeout)
	assert.Equal(t, 120, cfg.Server.IdleTimeout)
	assert.Equal(t, store.DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/groups", cfg.Storage.FilePath)
	assert.False(t, cfg.Storage.AutoMigrate)
}

func TestLoadListenerConfig(t *testing.T) {
	configFile := writeConfigFile(t, `
telegram:
  token: "123:abc"
  allowed_chat_ids: [-1001, -1002]
nats:
  url: "nats://nats:4222"
`)

	cfg, err := LoadListenerConfig(configFile, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, []int64{-1001, -1002}, cfg.Telegram.AllowedChatIDs)
	assert.Equal(t, 60, cfg.Telegram.UpdateTimeout)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "group-listener", cfg.NATS.ConnectionName)
	assert.Equal(t, 5*time.Minute, cfg.StatsInterval)
}

func TestLoadCtlConfig(t *testing.T) {
	cfg, err := LoadCtlConfig(writeConfigFile(t, ""), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, store.DriverMySQL, cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{
		Host:           "localhost",
		Port:           3306,
		ReadHost:       "replica",
		User:           "user",
		Password:       "p@ss",
		DBName:         "groups",
		SSLMode:        "disable",
		Charset:        "utf8mb4",
		ConnectTimeout: 5 * time.Second,
	}

	tests := []struct {
		name     string
		driver   string
		expected string
		read     string
	}{
		{
			name:     "mysql",
			driver:   store.DriverMySQL,
			expected: "user:p@ss@tcp(localhost:3306)/groups?charset=utf8mb4&loc=UTC&parseTime=true&timeout=5s",
			read:     "user:p@ss@tcp(replica:3306)/groups?charset=utf8mb4&loc=UTC&parseTime=true&timeout=5s",
		},
		{
			name:     "postgres",
			driver:   store.DriverPostgres,
			expected: "host=localhost port=3306 user=user password=p@ss dbname=groups sslmode=disable connect_timeout=5",
			read:     "host=replica port=3306 user=user password=p@ss dbname=groups sslmode=disable connect_timeout=5",
		},
		{
			name:     "sqlite",
			driver:   store.DriverSQLite,
			expected: "groups",
			read:     "groups",
		},
		{
			name:     "file",
			driver:   store.DriverFile,
			expected: "",
			read:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, db.DSN(tt.driver))
			assert.Equal(t, tt.read, db.ReadDSN(tt.driver))
		})
	}
}

func TestDatabaseConfig_ReadDSN_NoReplica(t *testing.T) {
	db := DatabaseConfig{Host: "localhost", Port: 5432, ReadPort: 5433}

	assert.Empty(t, db.ReadDSN(store.DriverPostgres))

	db.ReadHost = "replica"
	assert.Contains(t, db.ReadDSN(store.DriverPostgres), "host=replica port=5433")
}

func TestStoreConfig(t *testing.T) {
	cfg := StoreConfig(true,
		StorageConfig{Driver: store.DriverMySQL, FilePath: "data/", Fallback: true, AutoMigrate: true},
		DatabaseConfig{Host: "h", Port: 3306, User: "u", Password: "p", DBName: "d", Charset: "utf8mb4", MaxOpenConns: 7},
	)

	assert.Equal(t, store.DriverMySQL, cfg.Driver)
	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&loc=UTC&parseTime=true", cfg.DSN)
	assert.Empty(t, cfg.ReadDSN)
	assert.Equal(t, 7, cfg.MaxOpenConns)
	assert.Equal(t, "data/", cfg.FilePath)
	assert.True(t, cfg.Fallback)
	assert.True(t, cfg.AutoMigrate)
	assert.True(t, cfg.Debug)
}

func TestConfigWithEnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()

	envDir := filepath.Join(tmpDir, "env")
	err := os.MkdirAll(envDir, 0750)
	require.NoError(t, err)

	// Viper uses the GROUP_INDEXER_ prefix
	envFile := filepath.Join(envDir, ".env")
	envContent := `GROUP_INDEXER_DEBUG=true
GROUP_INDEXER_STORAGE_DRIVER=postgres
GROUP_INDEXER_DATABASE_HOST=env-host
GROUP_INDEXER_DATABASE_PORT=5433
GROUP_INDEXER_DATABASE_USER=env-user
`
	err = os.WriteFile(envFile, []byte(envContent), 0600)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, key := range []string{"DEBUG", "STORAGE_DRIVER", "DATABASE_HOST", "DATABASE_PORT", "DATABASE_USER"} {
			_ = os.Unsetenv(EnvPrefix + "_" + key)
		}
	})

	configPath := filepath.Join(tmpDir, "config.yaml")
	configFile := `
debug: false
storage:
  driver: mysql
database:
  host: file-host
  port: 3306
  user: file-user
`
	err = os.WriteFile(configPath, []byte(configFile), 0600)
	require.NoError(t, err)

	cfg, err := LoadAPIConfig(configPath, envDir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// .env values override the config file
	assert.True(t, cfg.Debug)
	assert.Equal(t, store.DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "env-user", cfg.Database.User)
}
