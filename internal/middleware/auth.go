package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/log"
)

// Auth verifies the bearer credential and attaches the opaque user id to the
// request context. Identity is issued externally; the engine only scopes its
// state and upstream calls with it.
func Auth(secretKey string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := zerolog.Ctx(r.Context()).
				With().
				Str(log.KeyTag, "middleware Auth").
				Logger()
			c := logger.WithContext(r.Context())

			authorization := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				logger.Error().
					Err(inErrors.ErrEmptyAuth).
					Msg(inErrors.ErrEmptyAuth.Error())
				inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
					"status":     "failed",
					"statusCode": http.StatusUnauthorized,
					"message":    inErrors.ErrEmptyAuth.Error(),
				})
				return
			}

			token := authorization[len("bearer "):]
			claims := jwt.RegisteredClaims{}
			_, err := jwt.ParseWithClaims(
				token,
				&claims,
				func(t *jwt.Token) (interface{}, error) { return []byte(secretKey), nil },
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil {
				logger.Error().Err(err).Msg(inErrors.ErrTokenInvalid.Error())
				inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
					"status":     "failed",
					"statusCode": http.StatusUnauthorized,
					"message":    inErrors.ErrTokenInvalid.Error(),
				})
				return
			}
			if claims.Subject == "" {
				logger.Error().
					Err(inErrors.ErrEmptySubject).
					Msg(inErrors.ErrEmptySubject.Error())
				inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
					"status":     "failed",
					"statusCode": http.StatusUnauthorized,
					"message":    inErrors.ErrEmptySubject.Error(),
				})
				return
			}

			c = log.AttachUserIDToContext(c, claims.Subject)
			next.ServeHTTP(w, r.WithContext(c))
		})
	}
}
