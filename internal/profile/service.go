package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/events"
	"paper-trade-go/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Profile is what a user sees about their own account.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhoneNumber string    `json:"phoneNumber"`
	Credits     float64   `json:"credits"`
	RealizedPnL float64   `json:"realizedPnL"`
}

// Update is a partial profile change; nil fields are left as they are.
type Update struct {
	DisplayName *string `json:"displayName"`
	PhoneNumber *string `json:"phoneNumber"`
}

type Service struct {
	db            *gorm.DB
	blobs         BlobStore
	maxImageBytes int64
	validate      *validator.Validate
	publisher     events.Publisher
	logger        *zap.Logger
}

func NewService(db *gorm.DB, blobs BlobStore, maxImageBytes int64, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		db:            db,
		blobs:         blobs,
		maxImageBytes: maxImageBytes,
		validate:      validator.New(),
		publisher:     publisher,
		logger:        logger.Named("profile"),
	}
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &Profile{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		PhoneNumber: user.PhoneNumber,
		Credits:     user.Credits,
		RealizedPnL: user.RealizedPnL,
	}, nil
}

// Update applies the non-nil fields of u. A phone number must be digits only
// or empty; a display name is at most 40 characters.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, u Update) (*Profile, error) {
	changes := make(map[string]interface{})
	if u.DisplayName != nil {
		name := strings.TrimSpace(*u.DisplayName)
		if err := s.validate.Var(name, "max=40"); err != nil {
			return nil, apperror.ErrDisplayNameTooLong
		}
		changes["display_name"] = name
	}
	if u.PhoneNumber != nil {
		phone := strings.TrimSpace(*u.PhoneNumber)
		if err := s.validate.Var(phone, "omitempty,number,max=20"); err != nil {
			return nil, apperror.ErrInvalidPhoneNumber
		}
		changes["phone_number"] = phone
	}

	if len(changes) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(changes)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update profile: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperror.ErrUserNotFound
		}
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		s.publisher.Publish(ctx, events.New(events.ProfileUpdated, userID, p))
	}
	return p, nil
}

func pictureKey(userID uuid.UUID) string {
	return "profilePictures/" + userID.String()
}

// PutPicture stores data as the user's profile picture, replacing any earlier
// one. It returns the sniffed content type.
func (s *Service) PutPicture(ctx context.Context, userID uuid.UUID, data []byte) (string, error) {
	if s.maxImageBytes > 0 && int64(len(data)) > s.maxImageBytes {
		return "", apperror.ErrImageTooLarge
	}
	contentType := http.DetectContentType(data)
	if len(data) == 0 || !strings.HasPrefix(contentType, "image/") {
		return "", apperror.ErrNotAnImage
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return "", err
	}

	if err := s.blobs.Put(ctx, pictureKey(userID), data); err != nil {
		return "", fmt.Errorf("failed to store profile picture: %w", err)
	}
	s.logger.Info("Profile picture updated", zap.Stringer("user", userID), zap.String("content_type", contentType))
	s.publisher.Publish(ctx, events.New(events.ProfileUpdated, userID, map[string]string{"picture": contentType}))
	return contentType, nil
}

// Picture returns the user's profile picture and its content type.
func (s *Service) Picture(ctx context.Context, userID uuid.UUID) ([]byte, string, error) {
	data, err := s.blobs.Get(ctx, pictureKey(userID))
	if errors.Is(err, ErrBlobNotFound) {
		return nil, "", apperror.ErrPictureNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load profile picture: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// DeletePicture removes the user's profile picture, if any.
func (s *Service) DeletePicture(ctx context.Context, userID uuid.UUID) error {
	if err := s.blobs.Delete(ctx, pictureKey(userID)); err != nil {
		return fmt.Errorf("failed to delete profile picture: %w", err)
	}
	s.publisher.Publish(ctx, events.New(events.ProfileUpdated, userID, map[string]string{"picture": ""}))
	return nil
}
