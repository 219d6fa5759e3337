package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "spacebook/pkg/errors"
	httputil "spacebook/pkg/http"
	"spacebook/pkg/logger"
	"spacebook/pkg/model"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload issued by the identity service.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret     []byte
	issuer     string
	publicPath map[string]bool
	log        *logger.Logger
}

func NewAuthenticator(secret, issuer string, log *logger.Logger, publicPaths ...string) *Authenticator {
	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}
	return &Authenticator{
		secret:     []byte(secret),
		issuer:     issuer,
		publicPath: public,
		log:        log,
	}
}

// Middleware resolves the actor from the Authorization header and stores it
// in the request context. Public paths pass through untouched.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.publicPath[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := a.Parse(r.Header.Get("Authorization"))
		if err != nil {
			a.log.Warn("Authentication failed",
				"request_id", RequestID(r),
				"path", r.URL.Path,
				"error", err,
			)
			if writeErr := httputil.WriteError(w, apperrors.Unauthorized("Missing or invalid bearer token")); writeErr != nil {
				a.log.Error("failed to write error response", "handler", "Authenticate", "operation", "WriteError", "error", writeErr)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (a *Authenticator) Parse(header string) (model.Actor, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return model.Actor{}, errors.New("missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return model.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.UserID == "" {
		return model.Actor{}, errors.New("token carries no user id")
	}

	roles := make([]model.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		roles = append(roles, model.Role(strings.ToLower(strings.TrimSpace(r))))
	}
	return model.Actor{UserID: claims.UserID, Roles: roles}, nil
}

// Issue signs a token for actor. Used by tests and local tooling.
func (a *Authenticator) Issue(actor model.Actor, ttl time.Duration) (string, error) {
	roles := make([]string, len(actor.Roles))
	for i, r := range actor.Roles {
		roles[i] = string(r)
	}
	now := time.Now()
	claims := Claims{
		UserID: actor.UserID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok && actor.UserID != ""
}

// RequireActor is the handler-side counterpart of Middleware.
func RequireActor(r *http.Request) (model.Actor, error) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		return model.Actor{}, apperrors.Unauthorized("Authentication required")
	}
	return actor, nil
}
