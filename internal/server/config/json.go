package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mkravchenko/authd/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1h" and integer nanoseconds.
//
// This struct is an intermediate DTO (Data Transfer Object) used only for
// reading JSON configuration files. After unmarshalling, its fields are
// copied into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	Address                      string         `json:"address"`
	DatabaseDSN                  string         `json:"database_dsn"`
	StorageBackend               string         `json:"storage_backend"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      *int           `json:"redis_db"`
	SecretKey                    string         `json:"secret_key"`
	JWTAlgorithm                 string         `json:"jwt_algorithm"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	CleanupInterval              timex.Duration `json:"cleanup_interval"`
	BcryptCost                   *int           `json:"bcrypt_cost"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the CONFIG environment variable. If it is not
// set, no JSON file is loaded and the Config is left untouched.
//
// If the path is set, parseJson reads and unmarshals the file into a
// JsonConfig and copies the values that are present into the target Config;
// fields absent from the file keep their current (default) values. If the
// file cannot be read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and environment
// variables as part of the full configuration process.
func parseJson(config *Config) {

	jsonConfigFile := os.Getenv("CONFIG")

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.Address != "" {
		config.Address = c.Address
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.StorageBackend != "" {
		config.StorageBackend = c.StorageBackend
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.RedisPassword != "" {
		config.RedisPassword = c.RedisPassword
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.JWTAlgorithm != "" {
		config.JWTAlgorithm = c.JWTAlgorithm
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = time.Duration(c.RefreshTokenValidityDuration.Duration)
	}
	if c.CleanupInterval.Duration != 0 {
		config.CleanupInterval = time.Duration(c.CleanupInterval.Duration)
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
}
