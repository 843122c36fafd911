package middleware

import (
	"net/http"
	"strings"

	"github.com/billcraft/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity headers. Upstream auth (API gateway, reverse proxy) resolves the
// caller and forwards these; this service trusts them inside the perimeter.
const (
	TenantHeader         = "X-Tenant-ID"
	WorkspaceHeader      = "X-Workspace-ID"
	UserHeader           = "X-User-ID"
	IdempotencyKeyHeader = "Idempotency-Key"
)

// Gin context keys set by Identity
const (
	TenantIDKey       = "tenant_id"
	WorkspaceIDKey    = "workspace_id"
	UserIDKey         = "user_id"
	IdempotencyKeyKey = "idempotency_key"
)

// IdentityConfig holds identity middleware configuration
type IdentityConfig struct {
	// SkipPaths bypass tenant enforcement (health probes, metrics)
	SkipPaths []string
	// RequireTenant rejects requests without a tenant ID
	RequireTenant bool
}

// DefaultIdentityConfig returns default identity middleware configuration
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		SkipPaths:     []string{"/health", "/healthz", "/ready"},
		RequireTenant: true,
	}
}

// Identity extracts the caller's tenant, workspace and user IDs plus the
// idempotency key from request headers and stores them in the gin context.
// Every invoice route requires a tenant; workspace and user stay optional
// because read-only and system callers have neither.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		tenantID, ok := parseHeaderUUID(c, TenantHeader)
		if !ok {
			return
		}
		if tenantID == uuid.Nil && cfg.RequireTenant {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeMissingTenant,
				"Tenant identification required",
				GetRequestID(c),
			))
			return
		}

		workspaceID, ok := parseHeaderUUID(c, WorkspaceHeader)
		if !ok {
			return
		}
		userID, ok := parseHeaderUUID(c, UserHeader)
		if !ok {
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Set(WorkspaceIDKey, workspaceID)
		c.Set(UserIDKey, userID)
		c.Set(IdempotencyKeyKey, c.GetHeader(IdempotencyKeyHeader))
		c.Next()
	}
}

// parseHeaderUUID reads a UUID header. A missing header yields uuid.Nil; a
// present but malformed one aborts the request.
func parseHeaderUUID(c *gin.Context, header string) (uuid.UUID, bool) {
	raw := c.GetHeader(header)
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
			dto.ErrCodeBadRequest,
			header+" must be a valid UUID",
			GetRequestID(c),
		))
		return uuid.Nil, false
	}
	return id, true
}

// GetTenantID returns the tenant ID set by Identity, or uuid.Nil
func GetTenantID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(TenantIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetWorkspaceID returns the workspace ID set by Identity, or uuid.Nil
func GetWorkspaceID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(WorkspaceIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetUserID returns the user ID set by Identity, or uuid.Nil
func GetUserID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(UserIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// GetIdempotencyKey returns the idempotency key set by Identity, or ""
func GetIdempotencyKey(c *gin.Context) string {
	return c.GetString(IdempotencyKeyKey)
}
