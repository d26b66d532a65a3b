package config

import (
	"time"

	"github.com/mkravchenko/authd/internal/envx"
)

// parseEnv populates selected server Config fields from environment
// variables.
//
// Supported variables:
//
//	ADDRESS                       HTTP bind address (e.g., ":8080")
//	DATABASE_DSN                  PostgreSQL DSN
//	STORAGE_BACKEND               "postgres" or "redis"
//	REDIS_ADDR                    Redis host:port
//	REDIS_PASSWORD                Redis password
//	REDIS_DB                      Redis logical database number
//	JWT_SECRET_KEY                JWT HMAC secret key
//	JWT_ALGORITHM                 signing algorithm (HS256, HS384, HS512)
//	ACCESS_TOKEN_EXPIRE_MINUTES   access token validity, minutes
//	REFRESH_TOKEN_EXPIRE_DAYS     refresh token validity, days
//	TOKEN_CLEANUP_INTERVAL_HOURS  sweep interval, hours
//	BCRYPT_COST                   bcrypt work factor
//
// Unset or empty variables leave the corresponding field untouched.
// Duration variables are accepted as integers and then converted to
// time.Duration values.
func parseEnv(config *Config) {
	if v, ok := envx.LookupString("ADDRESS"); ok {
		config.Address = v
	}
	if v, ok := envx.LookupString("DATABASE_DSN"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := envx.LookupString("STORAGE_BACKEND"); ok {
		config.StorageBackend = v
	}
	if v, ok := envx.LookupString("REDIS_ADDR"); ok {
		config.RedisAddr = v
	}
	if v, ok := envx.LookupString("REDIS_PASSWORD"); ok {
		config.RedisPassword = v
	}
	if v, ok := envx.LookupInt("REDIS_DB"); ok {
		config.RedisDB = v
	}
	if v, ok := envx.LookupString("JWT_SECRET_KEY"); ok {
		config.SecretKey = v
	}
	if v, ok := envx.LookupString("JWT_ALGORITHM"); ok {
		config.JWTAlgorithm = v
	}
	if v, ok := envx.LookupInt("ACCESS_TOKEN_EXPIRE_MINUTES"); ok {
		config.AccessTokenValidityDuration = time.Duration(v) * time.Minute
	}
	if v, ok := envx.LookupInt("REFRESH_TOKEN_EXPIRE_DAYS"); ok {
		config.RefreshTokenValidityDuration = time.Duration(v) * 24 * time.Hour
	}
	if v, ok := envx.LookupInt("TOKEN_CLEANUP_INTERVAL_HOURS"); ok {
		config.CleanupInterval = time.Duration(v) * time.Hour
	}
	if v, ok := envx.LookupInt("BCRYPT_COST"); ok {
		config.BcryptCost = v
	}
}
