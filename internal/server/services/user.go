// Package services contains server-side business logic. This file implements
// UserService, which owns the session lifecycle: registration, login,
// refresh-token rotation, logout, and access-token verification.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkravchenko/authd/internal/common"
	"github.com/mkravchenko/authd/internal/logging"
	"github.com/mkravchenko/authd/internal/server/auth"
	"github.com/mkravchenko/authd/internal/server/config"
	"github.com/mkravchenko/authd/internal/server/metrics"
	"github.com/mkravchenko/authd/internal/server/models"
	"github.com/mkravchenko/authd/internal/server/repositories/refreshtokens"
	"github.com/mkravchenko/authd/internal/server/repositories/repomanager"
	"github.com/mkravchenko/authd/internal/server/repositories/users"
)

// List pagination bounds.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// TokenPair bundles a short-lived access token and a long-lived opaque
// refresh token, in the shape the transport hands to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// UserUpdate lists the mutable identity fields for UpdateUser. Nil fields
// are left unchanged. Username is fixed at registration.
type UserUpdate struct {
	Email    *string
	Password *string
	Role     *models.UserRole
	Status   *models.UserStatus
}

// UserService provides authentication-related operations:
// - Register: create identities
// - Login: verify credentials and mint a token pair
// - Refresh: rotate refresh tokens and mint new access tokens
// - Logout: revoke every live session of an identity
// - Verify: decode an access token and check capabilities
type UserService struct {
	repos                        repomanager.RepositoryManager
	hasher                       auth.PasswordHasher
	checker                      auth.PasswordChecker
	logger                       logging.Logger
	jwtSecret                    []byte
	jwtMethod                    jwt.SigningMethod
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService from repositories and server
// config. A missing signing secret or an unsupported algorithm is a
// configuration fault and fails construction, not individual requests.
func NewUserService(m repomanager.RepositoryManager, hasher auth.PasswordHasher, checker auth.PasswordChecker, cfg *config.Config, logger logging.Logger) (*UserService, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("signing secret is empty")
	}
	method, err := auth.SigningMethod(cfg.JWTAlgorithm)
	if err != nil {
		return nil, err
	}
	return &UserService{
		repos:                        m,
		hasher:                       hasher,
		checker:                      checker,
		logger:                       logger,
		jwtSecret:                    []byte(cfg.SecretKey),
		jwtMethod:                    method,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}, nil
}

// Register creates a new identity with the given credentials. An empty role
// defaults to standard; new identities start out active. Uniqueness
// violations surface as common.ErrorAlreadyExists with nothing written.
func (s *UserService) Register(ctx context.Context, username, email, password string, role models.UserRole) (*models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error(ctx, "error hashing password", "error", err)
		return nil, common.ErrorInternal
	}
	if role == "" {
		role = models.UserRoleStandard
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       models.UserStatusActive,
	}
	created, err := s.repos.Users().Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		s.logger.Error(ctx, "error creating user", "error", err)
		return nil, common.ErrorUnavailable
	}
	return created, nil
}

// Login verifies a username/password pair and, on success, mints a fresh
// token pair. A lookup miss and a password mismatch both come back as
// common.ErrorUnauthorized so callers cannot probe which accounts exist.
func (s *UserService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	pair, err := s.login(ctx, username, password)
	if err != nil {
		metrics.Logins.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.Logins.WithLabelValues(metrics.ResultSuccess).Inc()
	return pair, nil
}

func (s *UserService) login(ctx context.Context, username, password string) (*TokenPair, error) {
	repo := s.repos.Users()

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "error fetching user", "error", err)
		return nil, common.ErrorUnavailable
	}
	if !s.checker.Check(password, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}
	if user.Status != models.UserStatusActive {
		return nil, &common.AccountNotActiveError{Status: string(user.Status)}
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := repo.Update(ctx, user); err != nil {
		// Bookkeeping only, the login itself still succeeds.
		s.logger.Warn(ctx, "error updating last login time", "error", err, "user_id", user.ID)
	}

	return s.generateTokenPair(ctx, user)
}

// Refresh redeems an opaque refresh token for a fresh pair. The presented
// record is revoked before anything is minted, so each token is redeemable
// at most once: concurrent redemptions race on the store's conditional
// revoke and exactly one of them wins.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	return pair, nil
}

func (s *UserService) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repos.RefreshTokens()

	token, err := repo.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		s.logger.Error(ctx, "error fetching refresh token", "error", err)
		return nil, common.ErrorUnavailable
	}
	if !token.Redeemable(time.Now()) {
		return nil, common.ErrInvalidRefreshToken
	}

	user, err := s.repos.Users().GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, &common.AccountNotActiveError{Status: "deleted"}
		}
		s.logger.Error(ctx, "error fetching token owner", "error", err)
		return nil, common.ErrorUnavailable
	}
	if user.Status != models.UserStatusActive {
		return nil, &common.AccountNotActiveError{Status: string(user.Status)}
	}

	// Revoke before mint: once the revocation is durable the old token can
	// never be redeemed again, even if minting below fails.
	revoked, err := repo.Revoke(ctx, refreshToken)
	if err != nil {
		s.logger.Error(ctx, "error revoking refresh token", "error", err)
		return nil, common.ErrorUnavailable
	}
	if !revoked {
		// A concurrent redemption got there first.
		return nil, common.ErrInvalidRefreshToken
	}

	return s.generateTokenPair(ctx, user)
}

// Logout revokes every live session record owned by the user. Records
// already revoked or expired are left alone, so repeated logouts are
// harmless.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	n, err := s.repos.RefreshTokens().RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "error revoking user sessions", "error", err, "user_id", userID)
		return common.ErrorUnavailable
	}
	s.logger.Debug(ctx, "user logged out", "user_id", userID, "sessions_revoked", n)
	return nil
}

// ListSessions returns the user's live session records in creation order.
// Records carry only metadata; the opaque tokens cannot be recovered.
func (s *UserService) ListSessions(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	sessions, err := s.repos.RefreshTokens().ListActiveByUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "error listing user sessions", "error", err, "user_id", userID)
		return nil, common.ErrorUnavailable
	}
	return sessions, nil
}

// Verify decodes an access token and checks that the embedded role grants
// every required capability. Any decode failure comes back as
// common.ErrorUnauthorized; a missing capability as common.ErrorForbidden.
// No store access happens here, so revoking a session does not invalidate
// access tokens already in flight.
func (s *UserService) Verify(tokenString string, required ...auth.Capability) (*auth.Claims, error) {
	claims, err := auth.ParseToken(tokenString, s.jwtSecret)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}
	for _, c := range required {
		if !auth.HasCapability(claims.Role, c) {
			return nil, common.ErrorForbidden
		}
	}
	return claims, nil
}

// GetUser returns the identity record for id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repos.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		s.logger.Error(ctx, "error fetching user", "error", err, "user_id", id)
		return nil, common.ErrorUnavailable
	}
	return user, nil
}

// ListUsers returns one page of identity records and the total number of
// records matching the filter.
func (s *UserService) ListUsers(ctx context.Context, filter users.UserFilter, offset, limit int) ([]*models.User, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	repo := s.repos.Users()
	items, err := repo.List(ctx, filter, offset, limit)
	if err != nil {
		s.logger.Error(ctx, "error listing users", "error", err)
		return nil, 0, common.ErrorUnavailable
	}
	total, err := repo.Count(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "error counting users", "error", err)
		return nil, 0, common.ErrorUnavailable
	}
	return items, total, nil
}

// UpdateUser applies the non-nil fields of upd to the stored record and
// returns the result. A password change revokes every live session of the
// user, forcing a fresh login everywhere.
func (s *UserService) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	repo := s.repos.Users()

	user, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		s.logger.Error(ctx, "error fetching user", "error", err, "user_id", id)
		return nil, common.ErrorUnavailable
	}

	passwordChanged := false
	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.Password != nil {
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			s.logger.Error(ctx, "error hashing password", "error", err)
			return nil, common.ErrorInternal
		}
		user.PasswordHash = hash
		passwordChanged = true
	}
	if upd.Role != nil {
		user.Role = *upd.Role
	}
	if upd.Status != nil {
		user.Status = *upd.Status
	}

	if err := repo.Update(ctx, user); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) || errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		s.logger.Error(ctx, "error updating user", "error", err, "user_id", id)
		return nil, common.ErrorUnavailable
	}

	if passwordChanged {
		if _, err := s.repos.RefreshTokens().RevokeAllForUser(ctx, id); err != nil {
			s.logger.Warn(ctx, "error revoking sessions after password change", "error", err, "user_id", id)
		}
	}
	return user, nil
}

// DeleteUser revokes the user's live sessions and then removes the identity
// record. Sessions go first; the key-value backend has no cascading delete.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.repos.RefreshTokens().RevokeAllForUser(ctx, id); err != nil {
		s.logger.Error(ctx, "error revoking user sessions", "error", err, "user_id", id)
		return common.ErrorUnavailable
	}
	if err := s.repos.Users().Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		s.logger.Error(ctx, "error deleting user", "error", err, "user_id", id)
		return common.ErrorUnavailable
	}
	return nil
}

// --- helpers below ---

func (s *UserService) generateAccessToken(user *models.User) (string, error) {
	return auth.GenerateToken(user.ID, user.Username, string(user.Role), s.jwtSecret, s.jwtMethod, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := s.generateAccessToken(user)
	if err != nil {
		s.logger.Error(ctx, "error signing access token", "error", err)
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		s.logger.Error(ctx, "error generating refresh token", "error", err)
		return nil, common.ErrorInternal
	}
	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: refreshtokens.HashToken(refresh),
		ExpiresAt: time.Now().UTC().Add(s.refreshTokenValidityDuration),
	}
	if err := s.repos.RefreshTokens().Create(ctx, record); err != nil {
		s.logger.Error(ctx, "error storing session record", "error", err)
		return nil, common.ErrorUnavailable
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenValidityDuration.Seconds()),
	}, nil
}
