package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vidfriends/watchparty/internal/access"
)

// MinSecretLength is the shortest HMAC secret the verifier accepts.
const MinSecretLength = 16

var (
	// ErrInvalidToken indicates the access token failed verification.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrTokenExpired indicates the access token is past its expiry.
	ErrTokenExpired = errors.New("access token expired")
)

type userMetadata struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type claims struct {
	UserMetadata userMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens issued by the identity provider.
type Verifier struct {
	secret  []byte
	issuer  string
	NowFunc func() time.Time
}

// NewVerifier constructs a Verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify parses tokenStr and returns the identity it asserts.
func (v *Verifier) Verify(tokenStr string) (access.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenStr), &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return access.Identity{}, ErrTokenExpired
		}
		return access.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return access.Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(c.Subject) == "" {
		return access.Identity{}, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return access.Identity{
		UserID:    c.Subject,
		Username:  strings.TrimSpace(c.UserMetadata.Username),
		AvatarURL: strings.TrimSpace(c.UserMetadata.AvatarURL),
	}, nil
}

// Sign mints a token for identity that expires after ttl. The service never
// issues tokens to clients; this exists for local tooling and tests.
func (v *Verifier) Sign(identity access.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	c := claims{
		UserMetadata: userMetadata{Username: identity.Username, AvatarURL: identity.AvatarURL},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

func (v *Verifier) now() time.Time {
	if v.NowFunc != nil {
		return v.NowFunc()
	}
	return time.Now()
}
