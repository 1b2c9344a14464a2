package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/config"
	"paper-trade-go/internal/events"
	"paper-trade-go/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const issuer = "paper-trade"

// Credentials are the email and password a user signs up and signs in with.
type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Token is a signed session token and the time it stops being accepted.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type claims struct {
	jwt.RegisteredClaims
}

// Service manages accounts and session tokens.
type Service struct {
	db             *gorm.DB
	secret         []byte
	ttl            time.Duration
	initialCredits float64
	validate       *validator.Validate
	publisher      events.Publisher
	logger         *zap.Logger
	now            func() time.Time
}

func NewService(db *gorm.DB, cfg config.Auth, initialCredits float64, publisher events.Publisher, logger *zap.Logger) (*Service, error) {
	if len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		secret:         []byte(cfg.JWTSecret),
		ttl:            ttl,
		initialCredits: initialCredits,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		publisher:      publisher,
		logger:         logger.Named("auth"),
		now:            time.Now,
	}, nil
}

// Register creates an account funded with the initial credits.
func (s *Service) Register(ctx context.Context, creds Credentials) (*models.User, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := s.validate.Struct(creds); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New(),
		Email:        creds.Email,
		PasswordHash: string(hash),
		Credits:      s.initialCredits,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.ErrEmailTaken
	}

	s.logger.Info("User registered", zap.Stringer("user", user.ID))
	return &user, nil
}

// SignIn checks the credentials and issues a session token.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*Token, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(creds.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	token, err := s.issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.New(events.SignedIn, user.ID, nil))
	return token, nil
}

func (s *Service) issue(userID uuid.UUID) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: expiresAt}, nil
}

// SignOut revokes the session's token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, sess Session) error {
	if !sess.Authenticated() {
		return apperror.ErrUnauthenticated
	}
	revoked := models.RevokedToken{ID: sess.TokenID, ExpiresAt: sess.ExpiresAt}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&revoked).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.publisher.Publish(ctx, events.New(events.SignedOut, sess.UserID, nil))
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if err := s.validate.Var(next, "required,min=6,max=72"); err != nil {
		return err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperror.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("password_hash", string(hash)).Error
	if err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}

// Resolve turns a raw token into a Session. Missing, malformed, expired and
// revoked tokens all resolve to an anonymous session.
func (s *Service) Resolve(ctx context.Context, raw string) Session {
	if raw == "" {
		return AnonymousSession()
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Debug("Rejected token", zap.Error(err))
		return AnonymousSession()
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil || c.ID == "" {
		return AnonymousSession()
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.RevokedToken{}).Where("id = ?", c.ID).Count(&count).Error; err != nil {
		s.logger.Error("Failed to check token revocation", zap.Error(err))
		return AnonymousSession()
	}
	if count > 0 {
		return AnonymousSession()
	}

	return Session{
		State:     Authenticated,
		UserID:    userID,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}
}

// PurgeRevoked deletes revocation records of tokens that have expired.
func (s *Service) PurgeRevoked(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.RevokedToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
