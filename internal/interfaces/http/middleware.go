package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/catalog"
	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/auth"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	userKey         = "user"
)

// requestIDMiddleware tags each request with the caller's id or a fresh uuid
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
	}
}

// authMiddleware resolves the bearer token to a user. The role is read
// from the catalog so precedence and capability changes apply at once.
func authMiddleware(issuer *auth.Issuer, roles port.RoleRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := issuer.Parse(raw)
		if err != nil {
			logger.Debug("Rejected token", zap.Error(err))
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		user := &entity.User{ID: claims.UserID, Username: claims.Username, IsSuperuser: claims.IsSuperuser}
		if claims.RoleID != nil {
			role, err := roles.GetByID(c.Request.Context(), *claims.RoleID)
			if err != nil {
				logger.Error("Failed to load role", zap.Int64("role_id", *claims.RoleID), zap.Error(err))
				abort(c, http.StatusInternalServerError, "failed to load role")
				return
			}
			if role == nil {
				abort(c, http.StatusUnauthorized, "unknown role")
				return
			}
			user.Role = role
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// requireManager admits only users allowed to edit the catalog
func requireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !catalog.CanManage(currentUser(c)) {
			abort(c, http.StatusForbidden, "workflow administration requires the manage capability")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *entity.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*entity.User); ok {
			return u
		}
	}
	return nil
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: message})
}
