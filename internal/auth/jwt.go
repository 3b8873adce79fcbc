package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/wiredraw-server/internal/core"
)

// ErrInvalidCredential is returned for any token that fails validation.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims represents JWT claims for wiredraw authentication.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret        []byte
	Issuer        string
	Audience      string
	TTL           time.Duration
	RequireExpiry bool
}

// GenerateToken creates a new JWT token for the given user.
// A zero TTL produces a token without expiry.
func GenerateToken(cfg *JWTConfig, userID, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Issuer:   cfg.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	if cfg.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// Validator checks bearer credentials. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	cfg    *JWTConfig
	parser *jwt.Parser
}

// NewValidator builds a validator for HS256 tokens signed with cfg.Secret.
func NewValidator(cfg *JWTConfig) *Validator {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.RequireExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	}
	return &Validator{cfg: cfg, parser: jwt.NewParser(opts...)}
}

// Validate parses the token and returns the identity it carries.
func (v *Validator) Validate(tokenString string) (core.Identity, error) {
	if tokenString == "" {
		return core.Identity{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	var claims Claims
	token, err := v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return v.cfg.Secret, nil
	})
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !token.Valid {
		return core.Identity{}, fmt.Errorf("%w: token not valid", ErrInvalidCredential)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return core.Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidCredential)
	}

	return core.Identity{UserID: userID, Name: claims.Name}, nil
}
