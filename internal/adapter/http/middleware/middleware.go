package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// KeyPrefix is the fixed prefix of raw agent keys.
	KeyPrefix = "sk_"

	// Context keys
	CtxAgentKeyID = "agent_key_id"
	CtxWalletID   = "wallet_id"
	CtxAgentKey   = "agent_key"
	CtxRequestID  = "request_id"
)

// RequestID assigns every request a UUID, echoed in the X-Request-ID
// response header and carried through the response envelope.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(CtxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// AgentKeyAuth authenticates the agent's bearer key. The raw secret is never
// stored; the SHA-256 digest is looked up instead.
func AgentKeyAuth(keyRepo ports.AgentKeyRepository, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok || !strings.HasPrefix(raw, KeyPrefix) {
			response.Error(c, apperror.Unauthorized("missing or malformed agent key"))
			c.Abort()
			return
		}

		digest := sha256.Sum256([]byte(raw))
		key, err := keyRepo.GetByKeyHash(c.Request.Context(), hex.EncodeToString(digest[:]))
		if err != nil {
			log.Error().Err(err).Msg("agent key lookup failed")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if key == nil {
			response.Error(c, apperror.Unauthorized("invalid agent key"))
			c.Abort()
			return
		}
		if !key.IsUsable(time.Now()) {
			response.Error(c, apperror.Unauthorized("agent key is inactive or expired"))
			c.Abort()
			return
		}

		c.Set(CtxAgentKeyID, key.ID)
		c.Set(CtxWalletID, key.WalletID)
		c.Set(CtxAgentKey, key)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return h[len(prefix):], true
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": string(apperror.CodeInternal),
					"message":    "internal server error",
				})
			}
		}()
		c.Next()
	}
}
