package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

func withJWTConfig(t *testing.T, secret string, minutes int) {
	t.Helper()
	prevSecret, prevExpiration := jwtSecret, jwtExpiration
	t.Cleanup(func() {
		jwtSecret, jwtExpiration = prevSecret, prevExpiration
	})
	ConfigureJWT(secret, minutes)
}

func testUser(username string, role models.UserRole) *models.User {
	return &models.User{
		BaseModel: models.BaseModel{ID: models.NewID()},
		Username:  username,
		Role:      role,
	}
}

func TestAccessTokenClaims(t *testing.T) {
	withJWTConfig(t, "claims-secret", 15)

	for _, user := range []*models.User{
		testUser("alice", models.UserRoleUser),
		testUser("root", models.UserRoleAdmin),
	} {
		t.Run(string(user.Role), func(t *testing.T) {
			token, err := GenerateToken(user)
			if err != nil {
				t.Fatalf("GenerateToken failed: %v", err)
			}
			claims, err := ValidateToken(token)
			if err != nil {
				t.Fatalf("ValidateToken failed: %v", err)
			}
			if claims.UserID != user.ID || claims.Subject != user.ID {
				t.Fatalf("claims identify %s/%s, want %s", claims.UserID, claims.Subject, user.ID)
			}
			if claims.Username != user.Username || claims.Role != user.Role {
				t.Fatalf("claims carry %s/%s, want %s/%s", claims.Username, claims.Role, user.Username, user.Role)
			}
		})
	}
}

func TestAccessTokenLifetime(t *testing.T) {
	t.Run("configured in minutes", func(t *testing.T) {
		withJWTConfig(t, "lifetime-secret", 45)

		claims, err := ValidateToken(mustToken(t, testUser("alice", models.UserRoleUser)))
		if err != nil {
			t.Fatalf("ValidateToken failed: %v", err)
		}
		if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 45*time.Minute {
			t.Fatalf("token lives %v, want 45m", got)
		}
		if AccessTokenLifetime() != 45*time.Minute {
			t.Fatalf("AccessTokenLifetime() = %v", AccessTokenLifetime())
		}
	})

	t.Run("zero keeps the previous lifetime and secret", func(t *testing.T) {
		withJWTConfig(t, "kept-secret", 20)
		token := mustToken(t, testUser("alice", models.UserRoleUser))

		ConfigureJWT("", 0)
		if AccessTokenLifetime() != 20*time.Minute {
			t.Fatalf("AccessTokenLifetime() = %v, want 20m", AccessTokenLifetime())
		}
		if _, err := ValidateToken(token); err != nil {
			t.Fatalf("token signed before the no-op reconfigure was rejected: %v", err)
		}
	})
}

func TestValidateTokenRejects(t *testing.T) {
	withJWTConfig(t, "reject-secret", 15)
	user := testUser("alice", models.UserRoleUser)

	sign := func(t *testing.T, claims Claims, key []byte) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}
		return token
	}
	claimsAt := func(issued time.Time, lifetime time.Duration) Claims {
		return Claims{
			UserID:   user.ID,
			Username: user.Username,
			Role:     user.Role,
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(issued),
				ExpiresAt: jwt.NewNumericDate(issued.Add(lifetime)),
				Subject:   user.ID,
			},
		}
	}

	t.Run("expired tokens report ErrTokenExpired", func(t *testing.T) {
		token := sign(t, claimsAt(time.Now().Add(-time.Hour), 15*time.Minute), jwtSecret)
		_, err := ValidateToken(token)
		if !errors.Is(err, jwt.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("tokens from another secret", func(t *testing.T) {
		token := sign(t, claimsAt(time.Now(), 15*time.Minute), []byte("someone-else"))
		if _, err := ValidateToken(token); err == nil {
			t.Fatal("expected a foreign signature to be rejected")
		}
	})

	t.Run("unsigned tokens", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsAt(time.Now(), 15*time.Minute)).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}
		if _, err := ValidateToken(token); err == nil {
			t.Fatal("expected an unsigned token to be rejected")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ValidateToken("Bearer abc.def"); err == nil {
			t.Fatal("expected garbage to be rejected")
		}
	})
}

func mustToken(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return token
}
