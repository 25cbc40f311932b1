package utils

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// AuthClaims identifies an operator account on the ops endpoints.
type AuthClaims struct {
	UserId int    `json:"uid"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

const defaultTokenLifespanHours = 24

var jwtSecret = []byte(jwtSecretFromEnv())

func jwtSecretFromEnv() string {
	if secret := os.Getenv("API_SECRET"); secret != "" {
		return secret
	}
	return "Leasing-Secret"
}

func tokenLifespan() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		hours = defaultTokenLifespanHours
	}
	return time.Duration(hours) * time.Hour
}

// JwtGenerate issues a signed token for one operator account.
func JwtGenerate(userId int, role string) (string, error) {
	now := time.Now()
	claims := &AuthClaims{
		UserId: userId,
		Role:   role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(tokenLifespan()).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

var errInvalidToken = errors.New("invalid token")

// JwtValidate parses and verifies a token, returning its claims.
func JwtValidate(token string) (*AuthClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AuthClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*AuthClaims)
	if !ok || !parsed.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}
