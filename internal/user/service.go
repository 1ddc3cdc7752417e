package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidtube-backend/internal/auth"
	"vidtube-backend/internal/media"
)

// Store is what the session manager needs from persistence. The Postgres
// Repository satisfies it; tests substitute an in-memory fake.
type Store interface {
	GetByIdentity(ctx context.Context, identity string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, p CreateParams) (User, error)
	SetRefreshToken(ctx context.Context, id string, token *string, expiresAt *time.Time) error
	UpdateAccount(ctx context.Context, id, fullName, email string) (User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateAvatar(ctx context.Context, id, avatarURL string) (User, error)
	UpdateCoverImage(ctx context.Context, id, coverImageURL string) (User, error)
	WatchHistory(ctx context.Context, id string) ([]WatchHistoryEntry, error)
	AddWatchHistory(ctx context.Context, userID, videoID string) error
}

// Service orchestrates the account and session lifecycle: registration,
// login, refresh-token rotation, logout and profile updates.
type Service struct {
	store    Store
	issuer   *auth.Issuer
	uploader media.Uploader
}

func NewService(store Store, issuer *auth.Issuer, uploader media.Uploader) *Service {
	return &Service{store: store, issuer: issuer, uploader: uploader}
}

type RegisterParams struct {
	FullName         string
	Email            string
	UserName         string
	Password         string
	AvatarSource     string
	CoverImageSource string
}

// Register creates an account. The identity is checked before any upload
// so a taken username never leaves an orphaned asset behind; if the insert
// still fails the uploaded images are destroyed best-effort without
// masking the original error. No tokens are issued at registration.
func (s *Service) Register(ctx context.Context, p RegisterParams) (Public, error) {
	for _, identity := range []string{p.UserName, p.Email} {
		_, err := s.store.GetByIdentity(ctx, identity)
		if err == nil {
			return Public{}, ErrIdentityTaken
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Public{}, err
		}
	}

	avatarURL, err := s.uploader.UploadImage(ctx, p.AvatarSource)
	if err != nil {
		return Public{}, fmt.Errorf("%w: %s", ErrUploadFailed, "avatar")
	}

	var coverImageURL string
	if p.CoverImageSource != "" {
		coverImageURL, err = s.uploader.UploadImage(ctx, p.CoverImageSource)
		if err != nil {
			_ = s.uploader.DestroyImage(ctx, avatarURL)
			return Public{}, fmt.Errorf("%w: %s", ErrUploadFailed, "cover image")
		}
	}

	passwordHash, err := auth.HashPassword(p.Password)
	if err != nil {
		return Public{}, err
	}

	created, err := s.store.Create(ctx, CreateParams{
		UserName:      p.UserName,
		Email:         p.Email,
		FullName:      p.FullName,
		PasswordHash:  passwordHash,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
	})
	if err != nil {
		_ = s.uploader.DestroyImage(ctx, avatarURL)
		if coverImageURL != "" {
			_ = s.uploader.DestroyImage(ctx, coverImageURL)
		}
		return Public{}, err
	}

	return created.Public(), nil
}

// Login verifies credentials, issues an access/refresh pair and persists
// the refresh token on the user record. Concurrent logins race
// last-write-wins on that single slot: only the latest refresh token
// stays valid.
func (s *Service) Login(ctx context.Context, identity, password string) (Public, Tokens, error) {
	u, err := s.store.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Public{}, Tokens{}, ErrUserNotFound
		}
		return Public{}, Tokens{}, err
	}

	if !auth.CheckPassword(password, u.PasswordHash) {
		return Public{}, Tokens{}, ErrInvalidCredentials
	}

	tokens, err := s.issueAndPersist(ctx, u)
	if err != nil {
		return Public{}, Tokens{}, err
	}

	return u.Public(), tokens, nil
}

// Refresh rotates the session. The presented token must carry a valid
// signature AND match the stored token byte-for-byte; a signed-but-
// superseded token means reuse and is rejected.
func (s *Service) Refresh(ctx context.Context, presented string) (Tokens, error) {
	if presented == "" {
		return Tokens{}, ErrUnauthorized
	}

	userID, err := s.issuer.VerifyRefreshToken(presented)
	if err != nil {
		return Tokens{}, ErrUnauthorized
	}

	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tokens{}, ErrUnauthorized
		}
		return Tokens{}, err
	}

	if u.RefreshToken == nil || *u.RefreshToken != presented {
		return Tokens{}, ErrRefreshTokenUsed
	}

	return s.issueAndPersist(ctx, u)
}

// Logout clears the stored refresh token unconditionally; repeating it is
// harmless.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.store.SetRefreshToken(ctx, userID, nil, nil)
}

func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword, confirmPassword string) error {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if !auth.CheckPassword(oldPassword, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if !auth.ValidPassword(newPassword) {
		return ErrWeakPassword
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.store.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) UpdateAccount(ctx context.Context, userID, fullName, email string) (Public, error) {
	u, err := s.store.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Public{}, ErrUserNotFound
		}
		return Public{}, err
	}

	return u.Public(), nil
}

// UpdateAvatar uploads the replacement first and destroys the previous
// asset only after the new URL is persisted, so a failed upload never
// leaves the account without an avatar.
func (s *Service) UpdateAvatar(ctx context.Context, userID, source string) (Public, error) {
	current, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Public{}, ErrUserNotFound
		}
		return Public{}, err
	}

	avatarURL, err := s.uploader.UploadImage(ctx, source)
	if err != nil {
		return Public{}, fmt.Errorf("%w: %s", ErrUploadFailed, "avatar")
	}

	updated, err := s.store.UpdateAvatar(ctx, userID, avatarURL)
	if err != nil {
		_ = s.uploader.DestroyImage(ctx, avatarURL)
		return Public{}, err
	}

	_ = s.uploader.DestroyImage(ctx, current.AvatarURL)

	return updated.Public(), nil
}

func (s *Service) UpdateCoverImage(ctx context.Context, userID, source string) (Public, error) {
	current, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Public{}, ErrUserNotFound
		}
		return Public{}, err
	}

	coverImageURL, err := s.uploader.UploadImage(ctx, source)
	if err != nil {
		return Public{}, fmt.Errorf("%w: %s", ErrUploadFailed, "cover image")
	}

	updated, err := s.store.UpdateCoverImage(ctx, userID, coverImageURL)
	if err != nil {
		_ = s.uploader.DestroyImage(ctx, coverImageURL)
		return Public{}, err
	}

	if current.CoverImageURL != "" {
		_ = s.uploader.DestroyImage(ctx, current.CoverImageURL)
	}

	return updated.Public(), nil
}

func (s *Service) CurrentUser(ctx context.Context, userID string) (Public, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Public{}, ErrUserNotFound
		}
		return Public{}, err
	}

	return u.Public(), nil
}

func (s *Service) WatchHistory(ctx context.Context, userID string) ([]WatchHistoryEntry, error) {
	return s.store.WatchHistory(ctx, userID)
}

func (s *Service) RecordWatch(ctx context.Context, userID, videoID string) error {
	return s.store.AddWatchHistory(ctx, userID, videoID)
}

func (s *Service) issueAndPersist(ctx context.Context, u User) (Tokens, error) {
	access, err := s.issuer.IssueAccessToken(u.ID, u.Email, u.FullName, u.UserName)
	if err != nil {
		return Tokens{}, err
	}

	refresh, expiresAt, err := s.issuer.IssueRefreshToken(u.ID)
	if err != nil {
		return Tokens{}, err
	}

	if err := s.store.SetRefreshToken(ctx, u.ID, &refresh, &expiresAt); err != nil {
		return Tokens{}, err
	}

	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}
