package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clawchain/clawmarket/internal/domain"
)

// AuthConfig controls how callers are identified.
type AuthConfig struct {
	JWTSecret string
	// RootAccount is treated as the privileged origin.
	RootAccount domain.AccountID
	// DevAuth accepts an X-Account header when no bearer token is sent.
	DevAuth bool
}

// Principal is an authenticated caller.
type Principal struct {
	Account domain.AccountID
	Root    bool
	Source  string
}

// Origin maps the principal to the origin calls run under.
func (p Principal) Origin() domain.Origin {
	if p.Root {
		return domain.Root()
	}
	return domain.Signed(p.Account)
}

type principalKey struct{}

func principalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type claims struct {
	jwt.RegisteredClaims
	Root bool `json:"root,omitempty"`
}

// IssueToken mints an HS256 token for account. A zero ttl never expires.
func IssueToken(secret string, account domain.AccountID, root bool, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if account == "" {
		return "", errors.New("account required")
	}
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  string(account),
			IssuedAt: jwt.NewNumericDate(now),
		},
		Root: root,
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func (c AuthConfig) authenticate(r *http.Request) (Principal, error) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		p, err := authenticateJWT(token, c.JWTSecret)
		if err != nil {
			return Principal{}, err
		}
		p.Root = p.Root || (c.RootAccount != "" && p.Account == c.RootAccount)
		return p, nil
	}
	if c.DevAuth {
		if acc := strings.TrimSpace(r.Header.Get("X-Account")); acc != "" {
			account := domain.AccountID(acc)
			return Principal{
				Account: account,
				Root:    c.RootAccount != "" && account == c.RootAccount,
				Source:  "dev_header",
			}, nil
		}
	}
	return Principal{}, errors.New("authentication required")
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	cl := &claims{}
	parsed, err := parser.ParseWithClaims(token, cl, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if cl.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{
		Account: domain.AccountID(cl.Subject),
		Root:    cl.Root,
		Source:  "jwt",
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// requireAuth rejects unauthenticated requests and stores the principal.
func (c AuthConfig) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := c.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}
