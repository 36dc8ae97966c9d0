package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"strata-waitlist/models"
	"strata-waitlist/store"
	"strata-waitlist/utils"
)

// AuthService is the dashboard login gate. Identity is possession of a
// waitlisted email. Deliberately lightweight; this is a marketing page, not
// an account system.
type AuthService struct {
	Store  store.Store
	secret []byte
	ttl    time.Duration
}

func NewAuthService(st store.Store) *AuthService {
	secret := utils.Getenv("JWT_SECRET", "")
	if secret == "" {
		log.Println("⚠️  JWT_SECRET not set, using an insecure development secret")
		secret = "dev-secret-change-me"
	}
	return &AuthService{
		Store:  st,
		secret: []byte(secret),
		ttl:    time.Duration(utils.GetenvInt("JWT_TTL_HOURS", 24)) * time.Hour,
	}
}

// Login resolves the email to a waitlist entry and issues a signed token for
// it. Unknown emails surface store.ErrNotFound.
func (s *AuthService) Login(ctx context.Context, email string) (string, *models.WaitlistEntry, error) {
	entry, err := s.Store.GetByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   entry.ID,
		"email": entry.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, entry, nil
}

// ParseToken verifies a token and returns the entry id it was issued for.
func (s *AuthService) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}
