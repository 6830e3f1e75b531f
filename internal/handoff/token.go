package handoff

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidIdentityToken is returned by VerifyIdentityToken for a
// missing, expired, or badly signed token.
var ErrInvalidIdentityToken = errors.New("handoff: invalid identity token")

// IdentityClaims is the claim set a signed handoff token carries so a
// target agent running in a different process can verify who the
// caller was without a shared database.
type IdentityClaims struct {
	CallerOwnerID string `json:"caller_owner_id,omitempty"`
	CallerOrgID   string `json:"caller_org_id,omitempty"`
	FromAgent     string `json:"from_agent,omitempty"`
	jwt.RegisteredClaims
}

const identityTokenTTL = 5 * time.Minute

// signIdentityToken issues a compact JWS binding req's caller identity,
// valid for identityTokenTTL.
func signIdentityToken(key []byte, fromAgent, ownerID, orgID string) (string, error) {
	claims := IdentityClaims{
		CallerOwnerID: ownerID,
		CallerOrgID:   orgID,
		FromAgent:     fromAgent,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(identityTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// VerifyIdentityToken parses and validates a token produced by
// signIdentityToken, returning its claims.
func VerifyIdentityToken(key []byte, token string) (*IdentityClaims, error) {
	if len(key) == 0 {
		return nil, ErrInvalidIdentityToken
	}
	parsed, err := jwt.ParseWithClaims(token, &IdentityClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, ErrInvalidIdentityToken
	}
	claims, ok := parsed.Claims.(*IdentityClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidIdentityToken
	}
	return claims, nil
}
