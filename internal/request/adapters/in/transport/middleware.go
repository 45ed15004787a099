package transport

import (
	"net/http"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/auth"
	"roadside/internal/shared/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderCorrelationID приходит от клиента или генерируется
	HeaderCorrelationID = "X-Correlation-ID"

	ctxKeyActor         = "actor"
	ctxKeyCorrelationID = "correlation_id"
)

// CorrelationMiddleware кладет correlation id в контекст и в ответ
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderCorrelationID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyCorrelationID, id)
		c.Header(HeaderCorrelationID, id)
		c.Next()
	}
}

// AccessLog пишет одну строку на запрос
func AccessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		e := logger.Entry{
			Action:        "http_request",
			Message:       c.Request.Method + " " + c.FullPath(),
			CorrelationID: correlationID(c),
			Additional: map[string]any{
				"status":      c.Writer.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"path":        c.Request.URL.Path,
			},
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn(e)
			return
		}
		log.Debug(e)
	}
}

// JWTMiddleware валидирует Bearer токен и кладет domain.Actor в контекст
func JWTMiddleware(jwtService *auth.JWTService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			log.Warn(logger.Entry{
				Action:        "jwt_validation_failed",
				Message:       err.Error(),
				CorrelationID: correlationID(c),
			})
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ctxKeyActor, domain.Actor{ID: claims.UserID, Role: domain.Role(claims.Role)})
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

// ActorFrom returns the actor set by JWTMiddleware.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(ctxKeyActor)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok && actor.ID != ""
}

func correlationID(c *gin.Context) string {
	return c.GetString(ctxKeyCorrelationID)
}
