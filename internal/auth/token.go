package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cryptalk/internal/presence"
)

// AppClaims defines our custom JWT claims structure. The subject carries
// the user id; display name and public key ride along so the relay never
// needs a store lookup to build the session identity.
type AppClaims struct {
	DisplayName string `json:"name,omitempty"`
	PublicKey   string `json:"pubkey,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for the identity with HMAC-SHA256.
func IssueToken(secret string, ttl time.Duration, id presence.Identity) (string, error) {
	now := time.Now()
	claims := AppClaims{
		DisplayName: id.DisplayName,
		PublicKey:   id.PublicKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and reconstructs the verified
// identity from its claims.
func ParseToken(secret, tokenString string) (presence.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return presence.Identity{}, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid {
		return presence.Identity{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return presence.Identity{}, errors.New("token missing 'sub' claim")
	}
	return presence.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		PublicKey:   claims.PublicKey,
	}, nil
}
