package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed, expired or wrongly
// signed bearer tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user identity. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier returns a verifier for tokens signed with secret. When issuer
// is set, tokens must carry it.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("JWT secret is empty")
	}
	return &Verifier{secret: secret, issuer: issuer}, nil
}

// Verify parses tokenString and returns the user it names.
func (v *Verifier) Verify(tokenString string) (workflow.User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return workflow.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return workflow.User{}, ErrInvalidToken
	}
	return workflow.User{ID: claims.Subject, LoginID: claims.Email}, nil
}

// Issue signs a token for user valid for ttl. The local server and tests use
// it to mint tokens.
func (v *Verifier) Issue(user workflow.User, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: user.LoginID,
	})
	return token.SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
