package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is the caller resolved from a verified session token.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// IsAdmin reports whether the identity may use the back-office.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

var (
	ErrNoVerificationKey = errors.New("no token verification key configured")
	ErrInvalidToken      = errors.New("invalid or expired token")
)

// Verifier validates Clerk session tokens. Clerk signs with RS256; an HMAC
// secret is accepted instead for local development and tests.
type Verifier struct {
	publicKey *rsa.PublicKey
	secret    []byte
	issuer    string
	adminIDs  map[string]bool
}

// NewVerifier builds a Verifier from a PEM encoded RSA public key and/or an
// HMAC secret. adminIDs are user ids granted the admin role regardless of
// their token claims.
func NewVerifier(publicKeyPEM, secret, issuer string, adminIDs []string) (*Verifier, error) {
	v := &Verifier{issuer: issuer, adminIDs: make(map[string]bool, len(adminIDs))}
	if pem := strings.TrimSpace(publicKeyPEM); pem != "" {
		// Env files often carry the key with literal \n separators.
		pem = strings.ReplaceAll(pem, `\n`, "\n")
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse clerk public key: %w", err)
		}
		v.publicKey = key
	}
	if s := strings.TrimSpace(secret); s != "" {
		v.secret = []byte(s)
	}
	if v.publicKey == nil && v.secret == nil {
		return nil, ErrNoVerificationKey
	}
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			v.adminIDs[id] = true
		}
	}
	return v, nil
}

// ParseAndValidateToken verifies the signature and standard claims of
// tokenStr and maps it to an Identity.
func (v *Verifier) ParseAndValidateToken(tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if v.publicKey != nil {
				return v.publicKey, nil
			}
		case *jwt.SigningMethodHMAC:
			if v.secret != nil {
				return v.secret, nil
			}
		}
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	})
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}

	id := &Identity{
		UserID: sub,
		Email:  stringClaim(claims, "email"),
		Name:   stringClaim(claims, "name"),
		Role:   RoleCustomer,
	}
	if v.adminIDs[sub] || roleFromClaims(claims) == RoleAdmin {
		id.Role = RoleAdmin
	}
	return id, nil
}

// roleFromClaims looks in the places a Clerk session template can put a
// role: a top-level claim, public/private metadata, or the active org role.
func roleFromClaims(claims jwt.MapClaims) string {
	if r := stringClaim(claims, "role"); r != "" {
		return r
	}
	for _, key := range []string{"public_metadata", "metadata"} {
		if m, ok := claims[key].(map[string]interface{}); ok {
			if r, ok := m["role"].(string); ok && r != "" {
				return r
			}
		}
	}
	if r := stringClaim(claims, "org_role"); r == "org:admin" {
		return RoleAdmin
	}
	return ""
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
