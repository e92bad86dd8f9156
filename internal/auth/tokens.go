package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "elearning-platform"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token revoked or expired")
)

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_exp"`
	RefreshExp   time.Time `json:"refresh_exp"`
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JTIStore records live token IDs so tokens can be revoked before expiry.
type JTIStore interface {
	Save(ctx context.Context, key, userID string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteUser(ctx context.Context, userID string) error
}

// TokenService issues and validates HS256 access/refresh token pairs.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         JTIStore
	now           func() time.Time
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, store JTIStore) (*TokenService, error) {
	if len(accessSecret) < 32 || len(refreshSecret) < 32 {
		return nil, fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET must be configured and at least 32 characters")
	}
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		store:         store,
		now:           time.Now,
	}, nil
}

func (s *TokenService) IssueTokenPair(ctx context.Context, userID, role string) (*TokenPair, error) {
	now := s.now()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	accessString, err := s.sign(userID, role, accessJTI, now, accessExp, s.accessSecret)
	if err != nil {
		return nil, err
	}
	refreshString, err := s.sign(userID, role, refreshJTI, now, refreshExp, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	// Store JTIs for revocation capability
	if err := s.store.Save(ctx, "access:"+accessJTI, userID, s.accessTTL); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, "refresh:"+refreshJTI, userID, s.refreshTTL); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessString,
		RefreshToken: refreshString,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *TokenService) sign(userID, role, jti string, now, exp time.Time, secret []byte) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *TokenService) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	return s.validate(ctx, tokenString, s.accessSecret, "access:")
}

func (s *TokenService) ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	return s.validate(ctx, tokenString, s.refreshSecret, "refresh:")
}

func (s *TokenService) validate(ctx context.Context, tokenString string, secret []byte, prefix string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	// Check if token is revoked
	exists, err := s.store.Exists(ctx, prefix+claims.ID)
	if err != nil || !exists {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// Refresh rotates a refresh token: the old one is revoked and a new pair issued.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, "refresh:"+claims.ID); err != nil {
		return nil, err
	}
	return s.IssueTokenPair(ctx, claims.UserID, claims.Role)
}

func (s *TokenService) RevokeToken(ctx context.Context, jti string, isRefresh bool) error {
	prefix := "access:"
	if isRefresh {
		prefix = "refresh:"
	}
	return s.store.Delete(ctx, prefix+jti)
}

func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID string) error {
	return s.store.DeleteUser(ctx, userID)
}
