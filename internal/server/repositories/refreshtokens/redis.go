package refreshtokens

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mkravchenko/authd/internal/common"
	"github.com/mkravchenko/authd/internal/server/models"
)

// RedisRepository keeps session records in Redis.
//
// Key layout:
//
//	rt:<token_hash>   hash with the record fields
//	rtu:<user_id>     set of the user's token hashes
//
// Records carry a native TTL at their expiry instant as a backstop; the
// cleanup sweep removes revoked records and repairs the per-user index.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func tokenKey(hash string) string        { return "rt:" + hash }
func userTokensKey(userID string) string { return "rtu:" + userID }

// revokeScript stamps revoked_at iff the field is absent. Reply: -1 when
// the record is gone, 1 when this call performed the transition, 0 when the
// record was already revoked. HSETNX decides a concurrent race, so at most
// one caller per token observes 1.
var revokeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
`)

func (r *RedisRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	key := tokenKey(token.TokenHash)
	fields := map[string]any{
		"id":         token.ID,
		"user_id":    token.UserID,
		"token_hash": token.TokenHash,
		"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"created_at": token.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, userTokensKey(token.UserID), token.TokenHash)
		pipe.ExpireAt(ctx, key, token.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) GetByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	m, err := r.client.HGetAll(ctx, tokenKey(HashToken(token))).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(m) == 0 {
		return nil, common.ErrorNotFound
	}
	return parseTokenRecord(m)
}

func (r *RedisRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	hashes, err := r.client.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	now := time.Now()
	var result []*models.RefreshToken
	var stale []any
	for _, hash := range hashes {
		m, err := r.client.HGetAll(ctx, tokenKey(hash)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error: %w", err)
		}
		if len(m) == 0 {
			stale = append(stale, hash)
			continue
		}
		rt, err := parseTokenRecord(m)
		if err != nil {
			return nil, err
		}
		if rt.Redeemable(now) {
			result = append(result, rt)
		}
	}

	if len(stale) > 0 {
		// index entries whose records hit their TTL
		if err := r.client.SRem(ctx, userTokensKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("redis error: %w", err)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *RedisRepository) Revoke(ctx context.Context, token string) (bool, error) {
	return r.revokeHash(ctx, HashToken(token))
}

func (r *RedisRepository) revokeHash(ctx context.Context, hash string) (bool, error) {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := revokeScript.Run(ctx, r.client, []string{tokenKey(hash)}, stamp).Int()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return res == 1, nil
}

func (r *RedisRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	hashes, err := r.client.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	var revoked int64
	for _, hash := range hashes {
		done, err := r.revokeHash(ctx, hash)
		if err != nil {
			return revoked, err
		}
		if done {
			revoked++
		}
	}
	return revoked, nil
}

func (r *RedisRepository) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	now := time.Now()

	var deleted int64
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "rt:*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis error: %w", err)
		}

		for _, key := range keys {
			m, err := r.client.HGetAll(ctx, key).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis error: %w", err)
			}
			if len(m) == 0 {
				continue
			}
			rt, err := parseTokenRecord(m)
			if err != nil {
				return deleted, err
			}
			if rt.RevokedAt == nil && now.Before(rt.ExpiresAt) {
				continue
			}
			_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, userTokensKey(rt.UserID), rt.TokenHash)
				return nil
			})
			if err != nil {
				return deleted, fmt.Errorf("redis error: %w", err)
			}
			deleted++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

func parseTokenRecord(m map[string]string) (*models.RefreshToken, error) {
	expiresAt, err := time.Parse(time.RFC3339Nano, m["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("redis error: malformed expires_at: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, m["created_at"])
	if err != nil {
		return nil, fmt.Errorf("redis error: malformed created_at: %w", err)
	}

	rt := &models.RefreshToken{
		ID:        m["id"],
		UserID:    m["user_id"],
		TokenHash: m["token_hash"],
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}

	if v := m["revoked_at"]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("redis error: malformed revoked_at: %w", err)
		}
		rt.RevokedAt = &ts
	}

	return rt, nil
}
