package user

import (
	"errors"
	"time"
)

// Service-level failures the HTTP layer maps onto statuses.
var (
	ErrIdentityTaken      = errors.New("username or email is already registered")
	ErrUserNotFound       = errors.New("user is not registered")
	ErrInvalidCredentials = errors.New("invalid user credentials")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrRefreshTokenUsed   = errors.New("refresh token is expired or used")
	ErrPasswordMismatch   = errors.New("new password and confirm password did not match")
	ErrWeakPassword       = errors.New("password does not satisfy the password policy")
	ErrUploadFailed       = errors.New("image upload failed")
	ErrVideoNotFound      = errors.New("video does not exist")
)

// User is the stored account record. PasswordHash and RefreshToken never
// leave this package; responses carry the Public view instead.
type User struct {
	ID                    string
	UserName              string
	Email                 string
	FullName              string
	PasswordHash          string
	AvatarURL             string
	CoverImageURL         string
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Public is the response view of a user record.
type Public struct {
	ID         string    `json:"id"`
	UserName   string    `json:"userName"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u User) Public() Public {
	return Public{
		ID:         u.ID,
		UserName:   u.UserName,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.AvatarURL,
		CoverImage: u.CoverImageURL,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// WatchHistoryEntry is one watched video joined with its owner's public
// fields.
type WatchHistoryEntry struct {
	VideoID      string     `json:"videoId"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnail"`
	WatchedAt    time.Time  `json:"watchedAt"`
	Owner        VideoOwner `json:"owner"`
}

type VideoOwner struct {
	FullName string `json:"fullName"`
	UserName string `json:"userName"`
	Avatar   string `json:"avatar"`
}
