package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mkravchenko/authd/internal/server/models"
	"github.com/mkravchenko/authd/internal/server/repositories/users"
	"github.com/mkravchenko/authd/internal/server/services"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type updateUserRequest struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=8"`
	Role     *string `json:"role" binding:"omitempty,oneof=standard administrator"`
	Status   *string `json:"status" binding:"omitempty,oneof=active inactive suspended"`
}

// userResponse is the outward shape of an identity record. The password
// hash never leaves the service.
type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// sessionResponse is the outward shape of a live session record. Token
// hashes stay server-side.
type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        string(u.Role),
		Status:      string(u.Status),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// register creates a standard identity. Administrator accounts are granted
// by an existing administrator or the bootstrap CLI, never by this endpoint.
func (s *HTTPServer) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.users.Register(c.Request.Context(), req.Username, req.Email, req.Password, models.UserRoleStandard)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (s *HTTPServer) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := s.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *HTTPServer) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := s.users.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *HTTPServer) logout(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		unauthorized(c, "missing token")
		return
	}

	if err := s.users.Logout(c.Request.Context(), claims.Subject); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) me(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		unauthorized(c, "missing token")
		return
	}

	user, err := s.users.GetUser(c.Request.Context(), claims.Subject)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *HTTPServer) mySessions(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		unauthorized(c, "missing token")
		return
	}

	sessions, err := s.users.ListSessions(c.Request.Context(), claims.Subject)
	if err != nil {
		s.renderError(c, err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, rt := range sessions {
		out = append(out, sessionResponse{ID: rt.ID, CreatedAt: rt.CreatedAt, ExpiresAt: rt.ExpiresAt})
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (s *HTTPServer) listUsers(c *gin.Context) {
	offset, err := intQuery(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	var filter users.UserFilter
	if v := c.Query("role"); v != "" {
		role := models.UserRole(v)
		filter.Role = &role
	}
	if v := c.Query("status"); v != "" {
		status := models.UserStatus(v)
		filter.Status = &status
	}
	if v := c.Query("created_after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid created_after"})
			return
		}
		filter.CreatedAfter = &ts
	}
	if v := c.Query("created_before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid created_before"})
			return
		}
		filter.CreatedBefore = &ts
	}

	items, total, err := s.users.ListUsers(c.Request.Context(), filter, offset, limit)
	if err != nil {
		s.renderError(c, err)
		return
	}

	out := make([]userResponse, 0, len(items))
	for _, u := range items {
		out = append(out, toUserResponse(u))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "total": total})
}

func (s *HTTPServer) getUser(c *gin.Context) {
	user, err := s.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *HTTPServer) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upd := services.UserUpdate{Email: req.Email, Password: req.Password}
	if req.Role != nil {
		role := models.UserRole(*req.Role)
		upd.Role = &role
	}
	if req.Status != nil {
		status := models.UserStatus(*req.Status)
		upd.Status = &status
	}

	user, err := s.users.UpdateUser(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *HTTPServer) deleteUser(c *gin.Context) {
	if err := s.users.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
