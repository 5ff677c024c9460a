package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/logger"
)

// ContextKeyCandidateID is the Gin context key holding the authenticated
// candidate's identifier.
const ContextKeyCandidateID = "candidateID"

// Auth returns a middleware that validates the Bearer token and stores the
// candidate identity in both the Gin context and the request context.
// Tokens are HS256 JWTs whose subject is the candidate ID.
func Auth(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthenticated(c, "missing bearer token")
			return
		}

		candidateID, err := parseSubject(token, cfg.JWTSecret)
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Rejected token: %v", err)
			abortUnauthenticated(c, "invalid or expired token")
			return
		}

		c.Set(ContextKeyCandidateID, candidateID)
		ctx := logger.WithField(c.Request.Context(), logger.FieldCandidateID, candidateID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// AdminAuth returns a middleware that guards operator endpoints with the
// configured static token.
func AdminAuth(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.AdminToken == "" {
			abortUnauthenticated(c, "admin access not configured")
			return
		}
		provided := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.AdminToken)) != 1 {
			abortUnauthenticated(c, "invalid admin token")
			return
		}
		c.Next()
	}
}

// CandidateID extracts the authenticated candidate ID set by Auth.
func CandidateID(c *gin.Context) string {
	return c.GetString(ContextKeyCandidateID)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// parseSubject validates the token signature and expiry and returns its
// subject claim.
func parseSubject(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return subject, nil
}

func abortUnauthenticated(c *gin.Context, message string) {
	e := apierr.Unauthenticated(message)
	c.AbortWithStatusJSON(e.Status, gin.H{"error": e})
}
