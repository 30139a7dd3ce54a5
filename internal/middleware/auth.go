package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UsernameKey is the context key for the authenticated username.
	UsernameKey contextKey = "username"
	// UserIDKey is the context key for the authenticated user ID.
	UserIDKey contextKey = "user_id"
)

// GetUsername extracts the authenticated username from the context.
// Returns empty string if not found.
func GetUsername(ctx context.Context) string {
	username, _ := ctx.Value(UsernameKey).(string)
	return username
}

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// WithClaims stores the identity carried by claims in ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, UsernameKey, claims.Username)
	return context.WithValue(ctx, UserIDKey, claims.UserID)
}

// bearerClaims validates the bearer token in header, if any. It returns nil
// claims and no error when no Authorization header is present.
func bearerClaims(jwtManager *auth.JWTManager, header string) (*auth.Claims, error) {
	if header == "" {
		return nil, nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return nil, auth.ErrInvalidToken
	}
	return jwtManager.Validate(token)
}

// Authenticate returns HTTP middleware that validates bearer tokens. A
// present but invalid token is rejected with 401; a missing token is
// rejected only when required is set. Browsers cannot set headers on a
// WebSocket handshake, so a "token" query parameter is accepted too.
func Authenticate(jwtManager *auth.JWTManager, required bool, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if token := r.URL.Query().Get("token"); token != "" {
					header = "Bearer " + token
				}
			}

			claims, err := bearerClaims(jwtManager, header)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if claims == nil {
				if required && !isPublic(r.URL.Path, public) {
					http.Error(w, auth.ErrMissingToken.Error(), http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func isPublic(path string, public []string) bool {
	for _, p := range public {
		if path == p {
			return true
		}
	}
	return false
}

// RequireAuth returns a Connect interceptor that validates JWT tokens and
// requires authentication for unary and streaming calls.
func RequireAuth(jwtManager *auth.JWTManager) connect.Interceptor {
	return &authInterceptor{jwtManager: jwtManager, required: true}
}

// OptionalAuth returns a Connect interceptor that validates JWT tokens if
// present, but allows calls without authentication.
func OptionalAuth(jwtManager *auth.JWTManager) connect.Interceptor {
	return &authInterceptor{jwtManager: jwtManager}
}

type authInterceptor struct {
	jwtManager *auth.JWTManager
	required   bool
}

func (i *authInterceptor) authenticate(ctx context.Context, header string) (context.Context, error) {
	claims, err := bearerClaims(i.jwtManager, header)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}
	if claims == nil {
		if i.required {
			return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
		}
		return ctx, nil
	}
	return WithClaims(ctx, claims), nil
}

func (i *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, err := i.authenticate(ctx, req.Header().Get("Authorization"))
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.RequestHeader().Get("Authorization"))
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

// ResolveActor returns the user a request acts for. The token subject wins;
// a claimed username that differs from it is forbidden. Without a token the
// claimed username is trusted.
func ResolveActor(ctx context.Context, claimed string) (string, error) {
	if username := GetUsername(ctx); username != "" {
		if claimed != "" && claimed != username {
			return "", fmt.Errorf("%w: token belongs to %s", models.ErrForbidden, username)
		}
		return username, nil
	}
	if claimed == "" {
		return "", fmt.Errorf("%w: username is required", models.ErrInvalidInput)
	}
	return claimed, nil
}
