package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "facesense"

// AuthConfig controls bearer token auth. Auth is off unless Enabled.
type AuthConfig struct {
	Enabled      bool
	Secret       []byte
	Username     string
	PasswordHash string
	TTL          time.Duration
	Now          func() time.Time
}

// Claims is the JWT payload issued at login.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// UsernameFrom returns the authenticated user stored by the auth middleware.
func UsernameFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(ctxKey{}).(string)
	return u, ok
}

type authenticator struct {
	cfg AuthConfig
}

func newAuthenticator(cfg AuthConfig) *authenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &authenticator{cfg: cfg}
}

// HashPassword returns a bcrypt hash suitable for admin_password_hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (a *authenticator) issue(username string) (string, time.Time, error) {
	now := a.cfg.Now()
	exp := now.Add(a.cfg.TTL)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (a *authenticator) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{SkipClaimsValidation: true}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return nil, ErrUnauthorized
	}
	if !claims.VerifyExpiresAt(a.cfg.Now(), true) {
		return nil, fmt.Errorf("%w: token expired", ErrUnauthorized)
	}
	return claims, nil
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	if !a.cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("authorization header must be Bearer {token}"))
			return
		}
		claims, err := a.parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *authenticator) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.Enabled {
		writeError(w, http.StatusNotFound, "auth_disabled", errors.New("authentication is disabled"))
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.Username != a.cfg.Username ||
		bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("invalid username or password"))
		return
	}
	token, exp, err := a.issue(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: req.Username, ExpiresAt: exp})
}

func (a *authenticator) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UsernameFrom(r.Context())
	if !ok {
		user = "anonymous"
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": user, "auth_enabled": a.cfg.Enabled})
}
