package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeTempJSON(t, dir, "cfg.json", map[string]any{
		"address":                         "www.example:9000",
		"database_dsn":                    "postgres://example/authd",
		"storage_backend":                 "redis",
		"redis_addr":                      "redis.example:6379",
		"redis_password":                  "hunter2",
		"redis_db":                        3,
		"secret_key":                      "my_secret_key",
		"jwt_algorithm":                   "HS512",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": "3m",
		"cleanup_interval":                "2h",
		"bcrypt_cost":                     12,
	})

	t.Run("loads from json", func(t *testing.T) {
		t.Setenv("CONFIG", path)

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.Address)
		assert.Equal(t, "postgres://example/authd", cfg.DatabaseDSN)
		assert.Equal(t, "redis", cfg.StorageBackend)
		assert.Equal(t, "redis.example:6379", cfg.RedisAddr)
		assert.Equal(t, "hunter2", cfg.RedisPassword)
		assert.Equal(t, 3, cfg.RedisDB)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "HS512", cfg.JWTAlgorithm)
		assert.Equal(t, 1*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Minute, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, 2*time.Hour, cfg.CleanupInterval)
		assert.Equal(t, 12, cfg.BcryptCost)
	})

	t.Run("no CONFIG → no changes", func(t *testing.T) {
		t.Setenv("CONFIG", "")

		cfg := &Config{
			Address:                      "defaults:1234",
			DatabaseDSN:                  "postgres://defaults/authd",
			StorageBackend:               "postgres",
			SecretKey:                    "key",
			JWTAlgorithm:                 "HS256",
			AccessTokenValidityDuration:  2 * time.Minute,
			RefreshTokenValidityDuration: 3 * time.Minute,
			CleanupInterval:              24 * time.Hour,
			BcryptCost:                   10,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.Address)
		assert.Equal(t, "postgres://defaults/authd", cfg.DatabaseDSN)
		assert.Equal(t, "postgres", cfg.StorageBackend)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, "HS256", cfg.JWTAlgorithm)
		assert.Equal(t, 2*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Minute, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, 24*time.Hour, cfg.CleanupInterval)
		assert.Equal(t, 10, cfg.BcryptCost)
	})

	t.Run("partial json keeps remaining fields", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{
			"address": "partial:8081",
		})
		t.Setenv("CONFIG", partial)

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "partial:8081", cfg.Address)
		assert.Equal(t, "secretKey", cfg.SecretKey)
		assert.Equal(t, 60*time.Minute, cfg.AccessTokenValidityDuration)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		t.Setenv("CONFIG", bad)

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
