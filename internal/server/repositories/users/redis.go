package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mkravchenko/authd/internal/common"
	"github.com/mkravchenko/authd/internal/server/models"
)

// RedisRepository keeps user records in Redis.
//
// Key layout:
//
//	user:<id>              hash with the record fields
//	user:username:<name>   unique index, value is the user id
//	user:email:<email>     unique index, value is the user id
//	users:all              set of all user ids
//
// Uniqueness is enforced by claiming the index keys with SETNX before the
// record itself is written, so concurrent creates race on the index and at
// most one wins.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

const allUsersKey = "users:all"

func userKey(id string) string           { return "user:" + id }
func usernameKey(username string) string { return "user:username:" + username }
func emailKey(email string) string       { return "user:email:" + email }

func (r *RedisRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	id := uuid.NewString()

	ok, err := r.client.SetNX(ctx, usernameKey(user.Username), id, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return nil, common.ErrorAlreadyExists
	}

	ok, err = r.client.SetNX(ctx, emailKey(user.Email), id, 0).Result()
	if err != nil || !ok {
		// release the username claim, the record was never written
		r.client.Del(ctx, usernameKey(user.Username))
		if err != nil {
			return nil, fmt.Errorf("redis error: %w", err)
		}
		return nil, common.ErrorAlreadyExists
	}

	now := time.Now().UTC()
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, userKey(id), recordFields(user))
		pipe.SAdd(ctx, allUsersKey, id)
		return nil
	})
	if err != nil {
		r.client.Del(ctx, usernameKey(user.Username), emailKey(user.Email))
		return nil, fmt.Errorf("redis error: %w", err)
	}

	return user, nil
}

func (r *RedisRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m, err := r.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(m) == 0 {
		return nil, common.ErrorNotFound
	}
	return parseRecord(m)
}

func (r *RedisRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getByIndex(ctx, usernameKey(username))
}

func (r *RedisRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getByIndex(ctx, emailKey(email))
}

func (r *RedisRepository) getByIndex(ctx context.Context, key string) (*models.User, error) {
	id, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Update rewrites the mutable fields of the record identified by user.ID.
// The username is an immutable identifier and is not touched. An email
// change re-points the email index and fails with ErrorAlreadyExists when
// the new address is already claimed.
func (r *RedisRepository) Update(ctx context.Context, user *models.User) error {
	current, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}

	if user.Email != current.Email {
		ok, err := r.client.SetNX(ctx, emailKey(user.Email), user.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("redis error: %w", err)
		}
		if !ok {
			return common.ErrorAlreadyExists
		}
		if err := r.client.Del(ctx, emailKey(current.Email)).Err(); err != nil {
			return fmt.Errorf("redis error: %w", err)
		}
	}

	fields := map[string]any{
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"role":          string(user.Role),
		"status":        string(user.Status),
		"updated_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if user.LastLoginAt != nil {
		fields["last_login_at"] = user.LastLoginAt.UTC().Format(time.RFC3339Nano)
	}

	if err := r.client.HSet(ctx, userKey(user.ID), fields).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, userKey(id))
		pipe.Del(ctx, usernameKey(current.Username))
		pipe.Del(ctx, emailKey(current.Email))
		pipe.SRem(ctx, allUsersKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (r *RedisRepository) List(ctx context.Context, filter UserFilter, offset int, limit int) ([]*models.User, error) {
	matched, err := r.filtered(ctx, filter)
	if err != nil {
		return nil, err
	}

	if offset >= len(matched) || limit <= 0 {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], nil
}

func (r *RedisRepository) Count(ctx context.Context, filter UserFilter) (int64, error) {
	matched, err := r.filtered(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// filtered loads every record, applies the filter in memory, and sorts by
// creation time with id as the tie break so pagination is stable.
func (r *RedisRepository) filtered(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	ids, err := r.client.SMembers(ctx, allUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}

	result := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		user, err := r.GetByID(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			// deleted between SMEMBERS and HGETALL
			continue
		}
		if err != nil {
			return nil, err
		}
		if matchesFilter(user, filter) {
			result = append(result, user)
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

func matchesFilter(user *models.User, filter UserFilter) bool {
	if filter.Role != nil && user.Role != *filter.Role {
		return false
	}
	if filter.Status != nil && user.Status != *filter.Status {
		return false
	}
	if filter.CreatedAfter != nil && !user.CreatedAt.After(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && !user.CreatedAt.Before(*filter.CreatedBefore) {
		return false
	}
	return true
}

func recordFields(user *models.User) map[string]any {
	fields := map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"role":          string(user.Role),
		"status":        string(user.Status),
		"created_at":    user.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    user.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if user.LastLoginAt != nil {
		fields["last_login_at"] = user.LastLoginAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func parseRecord(m map[string]string) (*models.User, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, m["created_at"])
	if err != nil {
		return nil, fmt.Errorf("redis error: malformed created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, m["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("redis error: malformed updated_at: %w", err)
	}

	user := &models.User{
		ID:           m["id"],
		Username:     m["username"],
		Email:        m["email"],
		PasswordHash: m["password_hash"],
		Role:         models.UserRole(m["role"]),
		Status:       models.UserStatus(m["status"]),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	if v := m["last_login_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("redis error: malformed last_login_at: %w", err)
		}
		user.LastLoginAt = &t
	}

	return user, nil
}
