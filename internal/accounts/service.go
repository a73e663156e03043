// Package accounts manages principal registration and profile maintenance:
// credentials, display fields and the avatar and cover images.
package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/validation"
)

const storeTimeout = 5 * time.Second

// Store persists principals. Lookups report apperr.KindNotFound and writes
// that collide on handle or email report apperr.KindConflict.
type Store interface {
	FindByHandleOrEmail(ctx context.Context, handle, email string) (models.Principal, error)
	FindByID(ctx context.Context, id string) (models.Principal, error)
	Create(ctx context.Context, principal models.Principal) error
	UpdateProfile(ctx context.Context, id, fullName, email string) (models.Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateAvatar(ctx context.Context, id, url string) (models.Principal, error)
	UpdateCoverImage(ctx context.Context, id, url string) (models.Principal, error)
	VerifySecret(ctx context.Context, principal models.Principal, secret string) (bool, error)
}

// BlobStore uploads a spooled local file and returns its public URL. Delete
// takes a URL previously returned by Upload.
type BlobStore interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Registration carries the sign-up form. File fields hold paths of already
// spooled uploads.
type Registration struct {
	FullName       string `json:"fullName" validate:"required,max=120"`
	Email          string `json:"email" validate:"required,email"`
	Handle         string `json:"username" validate:"required,max=64"`
	Password       string `json:"password" validate:"required"`
	AvatarPath     string `json:"-"`
	CoverImagePath string `json:"-"`
}

type profileUpdate struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
}

type passwordChange struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// Service implements the account operations.
type Service struct {
	store    Store
	blobs    BlobStore
	hashCost int
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, blobs BlobStore) *Service {
	if store == nil || blobs == nil {
		panic("accounts: store and blob store must not be nil")
	}
	return &Service{
		store:    store,
		blobs:    blobs,
		hashCost: bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithHashCost overrides the bcrypt cost.
func (s *Service) WithHashCost(cost int) *Service {
	clone := *s
	clone.hashCost = cost
	return &clone
}

// Register creates a principal. Input is validated and uniqueness checked
// before anything is uploaded or written.
func (s *Service) Register(ctx context.Context, reg Registration) (models.Principal, error) {
	reg.FullName = strings.TrimSpace(reg.FullName)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Handle = strings.ToLower(strings.TrimSpace(reg.Handle))

	if err := validation.Struct(&reg); err != nil {
		return models.Principal{}, err
	}
	if strings.TrimSpace(reg.Password) == "" {
		return models.Principal{}, apperr.Validation("password is required")
	}
	if strings.TrimSpace(reg.AvatarPath) == "" {
		return models.Principal{}, apperr.Validation("avatar file is required")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	_, err := s.store.FindByHandleOrEmail(lookupCtx, reg.Handle, reg.Email)
	cancel()
	switch {
	case err == nil:
		return models.Principal{}, apperr.Conflict("user with email or username already exists")
	case !apperr.Is(err, apperr.KindNotFound):
		return models.Principal{}, apperr.Upstream("credential store unavailable", err)
	}

	avatarURL, err := s.upload(ctx, reg.AvatarPath)
	if err != nil {
		return models.Principal{}, apperr.Upstream("failed to upload avatar", err)
	}
	var coverURL string
	if strings.TrimSpace(reg.CoverImagePath) != "" {
		coverURL, err = s.upload(ctx, reg.CoverImagePath)
		if err != nil {
			s.discard(ctx, avatarURL)
			return models.Principal{}, apperr.Upstream("failed to upload cover image", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.hashCost)
	if err != nil {
		s.discard(ctx, avatarURL, coverURL)
		return models.Principal{}, apperr.Internal("failed to secure password", err)
	}

	now := s.now()
	principal := models.Principal{
		ID:           uuid.NewString(),
		Handle:       reg.Handle,
		Email:        reg.Email,
		FullName:     reg.FullName,
		PasswordHash: string(hash),
		Avatar:       avatarURL,
		CoverImage:   coverURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	createCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	err = s.store.Create(createCtx, principal)
	cancel()
	if err != nil {
		s.discard(ctx, avatarURL, coverURL)
		if apperr.Is(err, apperr.KindConflict) {
			return models.Principal{}, apperr.Conflict("user with email or username already exists")
		}
		return models.Principal{}, apperr.Upstream("failed to create account", err)
	}

	logging.FromContext(ctx).Info("principal registered", "principalId", principal.ID, "username", principal.Handle)
	principal.PasswordHash = ""
	return principal, nil
}

// ChangePassword replaces the principal's secret after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	change := passwordChange{OldPassword: oldPassword, NewPassword: newPassword}
	if err := validation.Struct(&change); err != nil {
		return err
	}

	principal, err := s.find(ctx, principalID)
	if err != nil {
		return err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	ok, err := s.store.VerifySecret(verifyCtx, principal, oldPassword)
	cancel()
	if err != nil {
		return apperr.Upstream("credential store unavailable", err)
	}
	if !ok {
		return apperr.Validation("invalid old password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return apperr.Internal("failed to secure password", err)
	}

	updateCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	err = s.store.UpdatePassword(updateCtx, principalID, string(hash))
	cancel()
	if err != nil {
		return s.classify(err, "failed to update password")
	}
	return nil
}

// UpdateAccount changes the display name and email.
func (s *Service) UpdateAccount(ctx context.Context, principalID, fullName, email string) (models.Principal, error) {
	update := profileUpdate{
		FullName: strings.TrimSpace(fullName),
		Email:    strings.ToLower(strings.TrimSpace(email)),
	}
	if err := validation.Struct(&update); err != nil {
		return models.Principal{}, err
	}

	updateCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	principal, err := s.store.UpdateProfile(updateCtx, principalID, update.FullName, update.Email)
	cancel()
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return models.Principal{}, apperr.Conflict("email is already in use")
		}
		return models.Principal{}, s.classify(err, "failed to update account")
	}
	principal.PasswordHash = ""
	principal.RefreshTokenHash = ""
	return principal, nil
}

// UpdateAvatar uploads localPath and points the principal's avatar at it.
func (s *Service) UpdateAvatar(ctx context.Context, principalID, localPath string) (models.Principal, error) {
	return s.replaceImage(ctx, principalID, localPath, "avatar", s.store.UpdateAvatar)
}

// UpdateCoverImage uploads localPath and points the cover image at it.
func (s *Service) UpdateCoverImage(ctx context.Context, principalID, localPath string) (models.Principal, error) {
	return s.replaceImage(ctx, principalID, localPath, "cover image", s.store.UpdateCoverImage)
}

func (s *Service) replaceImage(
	ctx context.Context,
	principalID, localPath, label string,
	apply func(ctx context.Context, id, url string) (models.Principal, error),
) (models.Principal, error) {
	if strings.TrimSpace(localPath) == "" {
		return models.Principal{}, apperr.Validation(label + " file is missing")
	}

	url, err := s.upload(ctx, localPath)
	if err != nil {
		return models.Principal{}, apperr.Upstream("failed to upload "+label, err)
	}

	updateCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	principal, err := apply(updateCtx, principalID, url)
	cancel()
	if err != nil {
		s.discard(ctx, url)
		return models.Principal{}, s.classify(err, "failed to update "+label)
	}
	principal.PasswordHash = ""
	principal.RefreshTokenHash = ""
	return principal, nil
}

func (s *Service) upload(ctx context.Context, localPath string) (string, error) {
	url, err := s.blobs.Upload(ctx, localPath)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", apperr.New(apperr.KindUpstream, "blob store returned an empty url")
	}
	return url, nil
}

// discard deletes blobs uploaded for a write that did not land. Failures are
// logged; the caller's error is what the client sees.
func (s *Service) discard(ctx context.Context, urls ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, url := range urls {
		if url == "" {
			continue
		}
		deleteCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := s.blobs.Delete(deleteCtx, url)
		cancel()
		if err != nil {
			logging.FromContext(ctx).Warn("orphaned upload left behind", "url", url, "error", err)
		}
	}
}

func (s *Service) find(ctx context.Context, principalID string) (models.Principal, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	principal, err := s.store.FindByID(lookupCtx, principalID)
	if err != nil {
		return models.Principal{}, s.classify(err, "credential store unavailable")
	}
	return principal, nil
}

func (s *Service) classify(err error, message string) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound("user does not exist")
	}
	return apperr.Upstream(message, err)
}
