package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalid = errors.New("invalid token")

// LinkClaims identify the dialing endpoint of a link.
type LinkClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// LinkToken signs a short-lived token proving that name knows the target's secret.
// The secret itself never crosses the wire.
func LinkToken(name, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := LinkClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseLink verifies tokenStr against secret and returns the dialer's name.
func ParseLink(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &LinkClaims{}, func(_ *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalid
	}
	claims, ok := token.Claims.(*LinkClaims)
	if !ok || claims.Name == "" || claims.Subject != claims.Name {
		return "", ErrInvalid
	}
	return claims.Name, nil
}
