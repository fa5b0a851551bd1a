package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/repository"
)

// AuthService handles player registration and login.
type AuthService struct {
	pool    *pgxpool.Pool
	users   repository.UserRepository
	outbox  repository.OutboxRepository
	jwtMgr  *auth.JWTManager
	limiter *guard.RateLimiter
}

// NewAuthService creates a new AuthService. The rate limiter is keyed by
// phone so credential-stuffing one account cannot be spread across IPs.
func NewAuthService(
	pool *pgxpool.Pool,
	users repository.UserRepository,
	outbox repository.OutboxRepository,
	jwtMgr *auth.JWTManager,
	limiter *guard.RateLimiter,
) *AuthService {
	return &AuthService{
		pool:    pool,
		users:   users,
		outbox:  outbox,
		jwtMgr:  jwtMgr,
		limiter: limiter,
	}
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// AuthResult is returned on successful registration or login.
type AuthResult struct {
	Token   string    `json:"token"`
	UserID  uuid.UUID `json:"userId"`
	Phone   string    `json:"phone"`
	Balance int64     `json:"balance"`
}

// Register creates a new player account within a single transaction.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if err := domain.ValidatePhone(input.Phone); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(input.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}

	existing, err := s.users.FindByPhone(ctx, s.pool, input.Phone)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("phone already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	user := &domain.User{
		ID:                uuid.New(),
		Phone:             input.Phone,
		PasswordHash:      string(hash),
		ExternalPaymentID: uuid.New().String(),
	}
	if err := s.users.Create(ctx, tx, user); err != nil {
		// Lost the race on the phone unique index.
		return nil, domain.ErrConflict("phone already registered")
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewUserCreatedEvent(user.ID, user.Phone)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	token, err := s.jwtMgr.GenerateToken(auth.RealmPlayer, user.ID, user.Phone)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	return &AuthResult{Token: token, UserID: user.ID, Phone: user.Phone}, nil
}

// LoginInput holds the login request fields.
type LoginInput struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates a player and returns a JWT.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if res := s.limiter.Check(ctx, "login:"+input.Phone); !res.Allowed {
		return nil, domain.ErrRateLimited("too many login attempts, try again later")
	}

	user, err := s.users.FindByPhone(ctx, s.pool, input.Phone)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	token, err := s.jwtMgr.GenerateToken(auth.RealmPlayer, user.ID, user.Phone)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	return &AuthResult{Token: token, UserID: user.ID, Phone: user.Phone, Balance: user.Balance}, nil
}

// Profile returns the caller's account including the current balance.
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}
