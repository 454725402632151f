package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-realtime-chat/internal/common"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Store is what the service needs from persistence. *Repository implements it.
type Store interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
	Block(ctx context.Context, ownerID, blockedID string) error
	Unblock(ctx context.Context, ownerID, blockedID string) error
	ListBlocked(ctx context.Context, ownerID string) ([]BlockedUser, error)
	IsBlockedEither(ctx context.Context, a, b string) (bool, error)
}

type Service struct {
	repo      Store
	jwtSecret string
	tokenTTL  time.Duration
}

type MyJWTClaims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

const issuer = "go-realtime-chat"

func NewService(repo Store, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		tokenTTL:  tokenTTL,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > 50 {
		return nil, fmt.Errorf("%w: username must be 1-50 characters", common.ErrValidation)
	}
	if len(req.Password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", common.ErrValidation)
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:       uuid.NewString(),
		Username: username,
		Password: string(hashedPwd),
	}

	if _, err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	return &RegisterResponse{ID: u.ID, Username: u.Username}, nil
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, common.ErrUnauthorized
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

// ValidateToken returns the identity and username carried by a token.
func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))

	if err != nil || !token.Valid {
		return "", "", common.ErrUnauthorized
	}
	if claims.ID == "" {
		return "", "", common.ErrUnauthorized
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, strings.TrimSpace(query))
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) Block(ctx context.Context, ownerID, targetID string) error {
	if ownerID == targetID {
		return fmt.Errorf("%w: cannot block yourself", common.ErrValidation)
	}
	if _, err := s.repo.GetUserByID(ctx, targetID); err != nil {
		return err
	}
	return s.repo.Block(ctx, ownerID, targetID)
}

func (s *Service) Unblock(ctx context.Context, ownerID, targetID string) error {
	return s.repo.Unblock(ctx, ownerID, targetID)
}

func (s *Service) ListBlocked(ctx context.Context, ownerID string) ([]BlockedUser, error) {
	return s.repo.ListBlocked(ctx, ownerID)
}

func (s *Service) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	return s.repo.IsBlockedEither(ctx, a, b)
}
