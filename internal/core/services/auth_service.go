package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vinyl/internal/core/domain"
	"vinyl/pkg/utils"
	"vinyl/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type AuthService interface {
	// IssueSession creates a guest identity for username and returns its
	// token pair.
	IssueSession(username string) (*TokenPair, error)
	Refresh(refreshToken string) (*TokenPair, error)
	GenerateToken(userID domain.UserID, username string) (string, error)
	GenerateRefreshToken(userID domain.UserID, username string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

type Claims struct {
	UserID    domain.UserID `json:"user_id"`
	Username  string        `json:"username"`
	TokenType string        `json:"typ"`
	jwt.RegisteredClaims
}

// Session converts validated claims into the request identity.
func (c *Claims) Session() domain.Session {
	return domain.Session{User: c.UserID, Username: c.Username}
}

type TokenPair struct {
	UserID       domain.UserID `json:"user_id"`
	Username     string        `json:"username"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresIn    int64         `json:"expires_in"`
}

type authService struct {
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTokenTTL, refreshTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

func (s *authService) IssueSession(username string) (*TokenPair, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	username = utils.NormalizeUsername(username)
	userID := domain.UserID(utils.GenerateID("user"))

	access, err := s.GenerateToken(userID, username)
	if err != nil {
		return nil, err
	}
	refresh, err := s.GenerateRefreshToken(userID, username)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		UserID:       userID,
		Username:     username,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
	}, nil
}

func (s *authService) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	access, err := s.GenerateToken(claims.UserID, claims.Username)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		UserID:      claims.UserID,
		Username:    claims.Username,
		AccessToken: access,
		ExpiresIn:   int64(s.accessTokenTTL.Seconds()),
	}, nil
}

func (s *authService) GenerateToken(userID domain.UserID, username string) (string, error) {
	return s.sign(userID, username, tokenTypeAccess, s.accessTokenTTL)
}

func (s *authService) GenerateRefreshToken(userID domain.UserID, username string) (string, error) {
	return s.sign(userID, username, tokenTypeRefresh, s.refreshTokenTTL)
}

func (s *authService) sign(userID domain.UserID, username, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   string(userID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken accepts access tokens only.
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeAccess)
}

func (s *authService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeRefresh)
}

func (s *authService) validate(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type sessionKey struct{}

// WithSession stores the authenticated identity in ctx.
func WithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the identity stored by WithSession.
func SessionFromContext(ctx context.Context) (domain.Session, error) {
	session, ok := ctx.Value(sessionKey{}).(domain.Session)
	if !ok || session.User == "" {
		return domain.Session{}, ErrUnauthorized
	}
	return session, nil
}
