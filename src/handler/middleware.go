package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/src/domain"
)

const requestIDHeader = "X-Request-ID"

func SetMiddlewares(ctx context.Context, ginRouter *gin.Engine) {
	ginRouter.Use(LoggerMiddleware(ctx))
}

// LoggerMiddleware puts the root logger, enriched with request fields, on the request context.
func LoggerMiddleware(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		zlog := zerolog.Ctx(ctx).With().
			Str("path", c.FullPath()).
			Str("method", c.Request.Method).
			Str("request_id", requestID).
			Logger()
		c.Request = c.Request.WithContext(zlog.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		zlog.Debug().
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
}

// SharedSecretMiddleware validates the X-API-Secret header
func SharedSecretMiddleware(apiSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedSecret := c.GetHeader("X-API-Secret")

		if providedSecret == "" {
			err := domain.NewError(
				domain.ErrorCodeAuthNotAuthenticated,
				errors.New("missing API secret header"),
				domain.WithMsg("Missing API secret"),
			)
			respondWithError(c, err)
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedSecret), []byte(apiSecret)) != 1 {
			err := domain.NewError(
				domain.ErrorCodeAuthNotAuthenticated,
				errors.New("invalid API secret provided"),
				domain.WithMsg("Invalid API secret"),
			)
			respondWithError(c, err)
			return
		}

		c.Next()
	}
}
