package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coverpool/crypto"
)

// Scopes grant access to route groups. A token carries them space separated
// in its scope claim.
const (
	ScopeStaker   = "staker"
	ScopeProtocol = "protocol"
	ScopeGov      = "gov"
)

// Claims is the JWT payload accepted by the API. The subject is the caller's
// bech32 account.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// Identity is the authenticated caller.
type Identity struct {
	Account [20]byte
	Subject string
	scopes  map[string]struct{}
}

func (id *Identity) Has(scope string) bool {
	if id == nil {
		return false
	}
	_, ok := id.scopes[scope]
	return ok
}

type contextKey string

const identityKey contextKey = "identity"

// IdentityFrom returns the caller attached by the auth middleware, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

var (
	errMissingToken = errors.New("missing bearer token")
	errAuthDisabled = errors.New("authentication is not configured")
)

type authenticator struct {
	secret    []byte
	issuer    string
	audience  string
	anonReads bool
	now       func() time.Time
}

func (a *authenticator) parse(raw string) (*Identity, error) {
	if len(a.secret) == 0 {
		return nil, errAuthDisabled
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	addr, err := crypto.DecodeAddress(claims.Subject)
	if err != nil {
		return nil, err
	}
	id := &Identity{Account: addr.Raw(), Subject: claims.Subject, scopes: map[string]struct{}{}}
	for _, scope := range strings.Fields(claims.Scope) {
		id.scopes[scope] = struct{}{}
	}
	return id, nil
}

// authenticate attaches the caller when a bearer token is present. Requests
// without a token pass through anonymously; route guards decide.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			s.unauthorized(w, r, errMissingToken)
			return
		}
		id, err := s.auth.parse(strings.TrimSpace(raw))
		if err != nil {
			s.unauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// requireScope rejects callers without the scope. An empty scope only
// requires a valid token.
func (s *Server) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFrom(r.Context())
			if id == nil {
				s.unauthorized(w, r, errMissingToken)
				return
			}
			if scope != "" && !id.Has(scope) {
				s.apiMetrics.RecordThrottle("forbidden")
				writeJSON(w, http.StatusForbidden, errorBody{
					Code:    http.StatusForbidden,
					Reason:  "FORBIDDEN",
					Message: "token lacks scope " + scope,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireReader guards read routes when anonymous reads are disabled.
func (s *Server) requireReader(next http.Handler) http.Handler {
	if s.auth.anonReads {
		return next
	}
	return s.requireScope("")(next)
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	s.apiMetrics.RecordThrottle("unauthorized")
	s.logger.Warn("request rejected", "path", r.URL.Path, "reason", "UNAUTHORIZED", "error", err)
	writeJSON(w, http.StatusUnauthorized, errorBody{
		Code:    http.StatusUnauthorized,
		Reason:  "UNAUTHORIZED",
		Message: err.Error(),
	})
}

// IssueToken signs an HS256 token for subject with the given scopes.
func IssueToken(secret, subject string, scopes []string, issuer, audience string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errAuthDisabled
	}
	if _, err := crypto.DecodeAddress(subject); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: strings.Join(scopes, " "),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
