package database_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"wordroom/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := database.LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", config.ServerAddr)
	assert.Equal(t, "postgres", config.Store)
	assert.Equal(t, 5432, config.DBPort)
	assert.Equal(t, 24*time.Hour, config.PurgeMaxAge)
	assert.Equal(t, 5, config.ChatBurst)
	assert.False(t, config.RedisEnabled)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"store": "memory",
		"db_host": "db.internal",
		"purge_max_age": "2h",
		"kafka_brokers": ["k1:9092", "k2:9092"]
	}`), 0o600))
	t.Setenv("WORDROOM_DB_HOST", "override")

	config, err := database.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", config.Store)
	assert.Equal(t, "override", config.DBHost)
	assert.Equal(t, 2*time.Hour, config.PurgeMaxAge)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, config.KafkaBrokers)
	assert.Equal(t,
		"host=override port=5432 user=postgres dbname=wordroom password= sslmode=disable",
		database.PostgresDSN(config))
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := database.LoadConfig(path)
	assert.Error(t, err)
}

func TestInitRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	config, err := database.LoadConfig("")
	require.NoError(t, err)
	config.RedisAddr = mr.Addr()
	rdb, err := database.InitRedis(config, zap.NewNop())
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = database.InitRedis(config, zap.NewNop())
	assert.Error(t, err)
}
