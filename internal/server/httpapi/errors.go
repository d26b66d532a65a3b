package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkravchenko/authd/internal/common"
)

// renderError translates a domain error into a response. The mapping keys on
// the error kind, never on message text. Authentication failures keep a
// deliberately generic body.
func (s *HTTPServer) renderError(c *gin.Context, err error) {
	var notActive *common.AccountNotActiveError
	switch {
	case errors.As(err, &notActive):
		c.JSON(http.StatusForbidden, gin.H{"error": notActive.Error()})
	case errors.Is(err, common.ErrInvalidRefreshToken):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
	case errors.Is(err, common.ErrorUnauthorized):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
	case errors.Is(err, common.ErrorForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrorAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, common.ErrorUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		s.logger.Error(c.Request.Context(), "unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
