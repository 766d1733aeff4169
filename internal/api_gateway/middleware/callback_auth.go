package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// CallbackSignatureHeader carries the hex HMAC-SHA256 of the raw callback body
	CallbackSignatureHeader = "X-Callback-Signature"

	maxCallbackBody = 1 << 20
)

// SignCallback returns the signature a provider must send for body
func SignCallback(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CallbackAuth rejects callbacks whose signature does not match the provider's shared secret.
// Providers without a secret do not accept callbacks at all. The body is restored for the handler.
func CallbackAuth(logger *slog.Logger, secrets map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
		secret, ok := secrets[provider]
		if !ok || secret == "" {
			logger.Warn("Callback for provider without a secret", "provider", provider)
			abortWithError(c, http.StatusNotFound, "NOT_FOUND", "Unknown callback provider")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "BAD_REQUEST", "Unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		given, err := hex.DecodeString(c.GetHeader(CallbackSignatureHeader))
		expected, _ := hex.DecodeString(SignCallback(secret, body))
		if err != nil || !hmac.Equal(given, expected) {
			logger.Warn("Callback signature mismatch",
				"provider", provider,
				"correlation_id", GetCorrelationID(c),
				"client_ip", c.ClientIP(),
			)
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid callback signature")
			return
		}

		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
