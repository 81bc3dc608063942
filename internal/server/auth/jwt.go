// Package auth signs and parses the JWT carrier credential handed to clients.
// The carrier only names a session; its liveness is checked separately
// against the session store.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the user and the session token the JWT was minted for.
type Claims struct {
	jwt.RegisteredClaims
	UserID  int64  `json:"userId"`
	TokenID string `json:"token"`
}

func GenerateToken(userID int64, tokenID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:  userID,
		TokenID: tokenID,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies the signature and expiry of tokenString.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == 0 || claims.TokenID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
