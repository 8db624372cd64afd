package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm used by Issuer.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrWrongTokenUse is returned when a refresh token is presented as an access
// token or the other way around.
var ErrWrongTokenUse = errors.New("wrong token use")

// IssuerConfig configures token minting.
type IssuerConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	Issuer        string
	KeyID         string
}

// Issuer mints and verifies signed access and refresh tokens. Only the fake
// backend and tests use it; the client never holds signing keys.
type Issuer struct {
	config IssuerConfig
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Issuer{config: cfg}, nil
}

// IssueAccess signs an access token for the given identity.
func (i *Issuer) IssueAccess(userID, email, role string) (string, error) {
	return i.issue(Claims{
		UserID: ID(userID),
		Email:  email,
		Role:   role,
		Use:    useAccess,
	}, userID, i.config.AccessTTL)
}

// IssueAccessWithTTL signs an access token with an explicit lifetime. A
// negative ttl produces an already expired token.
func (i *Issuer) IssueAccessWithTTL(userID, email, role string, ttl time.Duration) (string, error) {
	return i.issue(Claims{
		UserID: ID(userID),
		Email:  email,
		Role:   role,
		Use:    useAccess,
	}, userID, ttl)
}

// IssueRefresh signs a refresh token bound to userID and email.
func (i *Issuer) IssueRefresh(userID, email string) (string, error) {
	return i.issue(Claims{
		UserID: ID(userID),
		Email:  email,
		Use:    useRefresh,
	}, userID, i.config.RefreshTTL)
}

// VerifyAccess checks signature, expiry and token use.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, useAccess)
}

// VerifyRefresh checks signature, expiry and token use.
func (i *Issuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, useRefresh)
}

func (i *Issuer) issue(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(i.method(), claims)
	if i.config.KeyID != "" {
		token.Header["kid"] = i.config.KeyID
	}

	key, err := i.signKey()
	if err != nil {
		return "", err
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Use, err)
	}
	return signed, nil
}

func (i *Issuer) verify(tokenStr, use string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if i.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != i.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return i.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Use != use {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}

func (i *Issuer) method() jwt.SigningMethod {
	if i.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (i *Issuer) signKey() (any, error) {
	if i.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(i.config.PrivateKey)
	}
	return i.config.PrivateKey, nil
}

func (i *Issuer) verifyKey() (any, error) {
	if i.config.SigningMethod == MethodEd25519 {
		priv, err := parseEdPrivateKey(i.config.PrivateKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	}
	return i.config.PrivateKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}
