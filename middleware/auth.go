/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       Claude Opus 4.6
Tier:        L4
Logic:       API key authentication middleware extracting Bearer
             tokens from the Authorization header and validating
             them against the principal store (admin-key constant-
             time bypass, else a bcrypt scan). Successful
             validations are cached in-process for a short TTL so
             the bcrypt scan does not run on every request from an
             already-authenticated caller.
Root Cause:  Sprint task T012 — API key authentication middleware.
Context:     Security-critical; all pipeline requests must resolve
             to a known principal before admission.
Suitability: L4 model required for auth middleware design.
──────────────────────────────────────────────────────────────
*/

package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oguzhankir/ai-gateway/principal"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// APIKeyContextKey stores the presented API key in request context.
	APIKeyContextKey contextKey = "api_key"
	// PrincipalContextKey stores the authenticated principal in request context.
	PrincipalContextKey contextKey = "principal"
)

// AuthMiddleware validates API keys on incoming requests against a
// principal.Verifier.
type AuthMiddleware struct {
	logger    zerolog.Logger
	verifier  *principal.Verifier
	cache     sync.Map // apiKey -> *cachedAuth
	cacheTTL  time.Duration
	headerKey string
}

type cachedAuth struct {
	p         principal.Principal
	expiresAt time.Time
}

// NewAuthMiddleware creates a new authentication middleware backed by v.
func NewAuthMiddleware(logger zerolog.Logger, v *principal.Verifier, headerKey string) *AuthMiddleware {
	if headerKey == "" {
		headerKey = "Authorization"
	}
	return &AuthMiddleware{
		logger:    logger,
		verifier:  v,
		cacheTTL:  5 * time.Minute,
		headerKey: headerKey,
	}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get(am.headerKey)
		if authHeader == "" {
			http.Error(w, `{"error":"missing authentication","message":"Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		apiKey := authHeader
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			apiKey = authHeader[7:]
		}
		if apiKey == "" {
			http.Error(w, `{"error":"invalid authentication","message":"API key cannot be empty"}`, http.StatusUnauthorized)
			return
		}

		if cached, ok := am.cache.Load(apiKey); ok {
			ca := cached.(*cachedAuth)
			if time.Now().Before(ca.expiresAt) {
				am.serveAuthenticated(w, r, next, apiKey, ca.p)
				return
			}
			am.cache.Delete(apiKey)
		}

		p, err := am.verifier.Verify(r.Context(), apiKey)
		if err != nil {
			am.logger.Warn().Err(err).Msg("authentication failed")
			http.Error(w, `{"error":"invalid authentication","message":"unknown or deactivated API key"}`, http.StatusUnauthorized)
			return
		}

		am.cache.Store(apiKey, &cachedAuth{p: p, expiresAt: time.Now().Add(am.cacheTTL)})
		am.serveAuthenticated(w, r, next, apiKey, p)
	})
}

func (am *AuthMiddleware) serveAuthenticated(w http.ResponseWriter, r *http.Request, next http.Handler, apiKey string, p principal.Principal) {
	ctx := context.WithValue(r.Context(), APIKeyContextKey, apiKey)
	ctx = context.WithValue(ctx, PrincipalContextKey, p)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// Invalidate removes a key from the validation cache, used when an
// operator deactivates a principal mid-process.
func (am *AuthMiddleware) Invalidate(apiKey string) {
	am.cache.Delete(apiKey)
}

// GetAPIKey extracts the presented API key from the request context.
func GetAPIKey(ctx context.Context) string {
	if v, ok := ctx.Value(APIKeyContextKey).(string); ok {
		return v
	}
	return ""
}

// GetPrincipal extracts the authenticated principal from the request context.
func GetPrincipal(ctx context.Context) (principal.Principal, bool) {
	v, ok := ctx.Value(PrincipalContextKey).(principal.Principal)
	return v, ok
}
