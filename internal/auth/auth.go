// Package auth issues and checks HS256 session tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession      = errors.New("auth: no session")
	ErrInvalidSession = errors.New("auth: invalid session")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// CookieName is the session cookie read when no bearer token is sent.
const CookieName = "session"

type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
}

// Has reports whether the identity holds any of roles. Admins hold every role.
func (i Identity) Has(roles ...Role) bool {
	if i.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// MockIdentity is the caller when session checks are mocked.
var MockIdentity = Identity{Subject: "mock-admin", Email: "admin@localhost", Role: RoleAdmin}

type claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a signed token for id.
func (a *Authenticator) Issue(id Identity) (string, time.Time, error) {
	const op = "auth.Authenticator.Issue"

	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%s: unknown role %q", op, id.Role)
	}

	now := a.now()
	exp := now.Add(a.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: id.Email,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	s, err := tok.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return s, exp, nil
}

// Parse validates a raw token.
func (a *Authenticator) Parse(raw string) (Identity, error) {
	var c claims

	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if !c.Role.Valid() || c.Subject == "" {
		return Identity{}, ErrInvalidSession
	}

	return Identity{Subject: c.Subject, Email: c.Email, Role: c.Role}, nil
}

// Authenticate reads the bearer token or the session cookie from r.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return Identity{}, ErrInvalidSession
		}
		raw = strings.TrimSpace(tok)
	} else if ck, err := r.Cookie(CookieName); err == nil {
		raw = ck.Value
	}

	if raw == "" {
		return Identity{}, ErrNoSession
	}

	return a.Parse(raw)
}
