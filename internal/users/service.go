package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const defaultHashCost = bcrypt.DefaultCost

var (
	// ErrMissingCredentials indicates that email or password were not supplied.
	ErrMissingCredentials = errors.New("users: email and password are required")
	// ErrEmailTaken indicates that another account already uses the email.
	ErrEmailTaken = errors.New("users: email already in use")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("users: invalid email or password")
	// ErrUserNotFound indicates that no account exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	HashCost int
	Logger   *zap.Logger
}

// Service registers accounts and checks login credentials.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	hashCost int
	logger   *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	hashCost := cfg.HashCost
	if hashCost == 0 {
		hashCost = defaultHashCost
	}
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("users: bcrypt cost %d out of range", hashCost)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		now:      clock,
		hashCost: hashCost,
		logger:   logger,
	}, nil
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (User, error) {
	normalizedEmail := NormalizeEmail(email)
	if normalizedEmail == "" || password == "" {
		return User{}, ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	now := s.now().UTC()
	user := User{
		Email:        normalizedEmail,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&User{}).Where("email = ?", normalizedEmail).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrEmailTaken
		}
		return tx.Create(&user).Error
	})
	if errors.Is(err, ErrEmailTaken) {
		return User{}, ErrEmailTaken
	}
	if err != nil {
		if s.emailExists(ctx, normalizedEmail) {
			return User{}, ErrEmailTaken
		}
		s.logger.Error("user registration failed", zap.Error(err))
		return User{}, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Authenticate returns the account when the password matches its stored hash.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	normalizedEmail := NormalizeEmail(email)
	if normalizedEmail == "" || password == "" {
		return User{}, ErrMissingCredentials
	}

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalizedEmail).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// FindByID loads an account by its identifier.
func (s *Service) FindByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) emailExists(ctx context.Context, email string) bool {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}
