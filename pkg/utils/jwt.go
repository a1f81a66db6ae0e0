package utils

import (
	"fmt"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret     = []byte("change-me-in-production")
	jwtExpiration = 15 * time.Minute
)

type Claims struct {
	UserID   string          `json:"userID"`
	Username string          `json:"username"`
	Role     models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func ConfigureJWT(secret string, expirationMinutes int) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if expirationMinutes > 0 {
		jwtExpiration = time.Duration(expirationMinutes) * time.Minute
	}
}

// AccessTokenLifetime is the validity of tokens issued by GenerateToken.
func AccessTokenLifetime() time.Duration {
	return jwtExpiration
}

func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
