// Package auth verifies and issues HMAC-signed bearer tokens.
//
// A token is accepted only when its signature verifies against the shared key,
// its issuer and audience match the configured values and it carries an
// expiry that has not passed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	TokenID string
}

type Claims struct {
	jwt.RegisteredClaims
}

type Options struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Leeway     time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

type Verifier struct {
	opts   Options
	parser *jwt.Parser
}

func NewVerifier(opts Options) (*Verifier, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(opts.now),
	)

	return &Verifier{opts: opts, parser: parser}, nil
}

func (v *Verifier) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.opts.SigningKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	return Identity{Subject: claims.Subject, TokenID: claims.ID}, nil
}

type Issuer struct {
	opts Options
}

func NewIssuer(opts Options) (*Issuer, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
	return &Issuer{opts: opts}, nil
}

// Issue signs a token for subject that expires after ttl.
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject must not be empty")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := i.opts.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.opts.Issuer,
			Audience:  jwt.ClaimStrings{i.opts.Audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.opts.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func checkOptions(opts Options) error {
	switch {
	case opts.Issuer == "":
		return errors.New("issuer must not be empty")
	case opts.Audience == "":
		return errors.New("audience must not be empty")
	case len(opts.SigningKey) < 32:
		return errors.New("signing key must be at least 32 bytes")
	}
	return nil
}
