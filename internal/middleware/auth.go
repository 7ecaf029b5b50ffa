package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/darkpool-labs/relaygate/internal/model"
	"github.com/darkpool-labs/relaygate/internal/pkg/apperrors"
	"github.com/darkpool-labs/relaygate/internal/service"
)

const (
	ContextCallerKey  = "caller"
	ContextRawBodyKey = "raw_body"
)

// AuthMiddleware verifies the request's HMAC signature and stores the
// authenticated caller and the raw body on the context. The body is read
// once here; handlers must use RawBody rather than re-reading the stream.
func AuthMiddleware(authorizer *service.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.Error(apperrors.NewSerde(err))
			c.Abort()
			return
		}

		caller, err := authorizer.Authorize(
			c.Request.URL.Path,
			c.Request.URL.RawQuery,
			c.Request.Header,
			body,
		)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		c.Set(ContextCallerKey, caller)
		c.Set(ContextRawBodyKey, body)
		c.Next()
	}
}

// GetCaller returns the authenticated caller set by AuthMiddleware.
func GetCaller(c *gin.Context) (*model.Caller, bool) {
	val, exists := c.Get(ContextCallerKey)
	if !exists {
		return nil, false
	}
	caller, ok := val.(*model.Caller)
	return caller, ok
}

// RawBody returns the request body captured by AuthMiddleware.
func RawBody(c *gin.Context) []byte {
	val, exists := c.Get(ContextRawBodyKey)
	if !exists {
		return nil
	}
	body, _ := val.([]byte)
	return body
}
