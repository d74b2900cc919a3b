package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "user_id"

// OptionalAuth resolves a bearer token when present. Invalid or absent
// tokens leave the request anonymous rather than rejecting it, matching
// the tiered access model where anonymous callers are first-class.
func (s *Server) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token != "" {
			if userID, err := s.verifier.Verify(c.Request.Context(), token); err == nil {
				c.Set(contextUserIDKey, userID)
			}
		}
		c.Next()
	}
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func currentUserID(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextUserIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then
// the socket address.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("X-Real-Ip")); ip != "" {
		return ip
	}
	return c.ClientIP()
}
