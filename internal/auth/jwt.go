package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Identity is what a verified token says about the caller.
type Identity struct {
	UserID string
	Name   string
	Image  string
}

// Verifier checks HS256 tokens issued by the marketplace auth provider.
type Verifier struct {
	Secret   []byte
	Issuer   string
	Audience string
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{Secret: []byte(secret), Issuer: issuer, Audience: audience}
}

func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidClaims
	}

	name, _ := claims["name"].(string)
	image, _ := claims["image"].(string)

	return &Identity{UserID: sub, Name: name, Image: image}, nil
}

// Mint issues a token for id. Used by local tooling and tests.
func (v *Verifier) Mint(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": id.UserID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	if id.Image != "" {
		claims["image"] = id.Image
	}
	if v.Issuer != "" {
		claims["iss"] = v.Issuer
	}
	if v.Audience != "" {
		claims["aud"] = v.Audience
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}
