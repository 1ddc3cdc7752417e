package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"vidtube-backend/internal/auth"
	"vidtube-backend/internal/media"
)

var (
	emailRegex    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	userNameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
)

const (
	maxJSONBodyBytes   = 1 << 20
	maxMultipartMemory = 12 << 20
)

type Handler struct {
	service *Service
	issuer  *auth.Issuer
}

func NewHandler(service *Service, issuer *auth.Issuer) *Handler {
	return &Handler{service: service, issuer: issuer}
}

// Register handles the multipart registration form: text fields plus a
// required avatar file and an optional cover image.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	fullName := strings.TrimSpace(r.FormValue("fullName"))
	email := strings.TrimSpace(r.FormValue("email"))
	userName := strings.TrimSpace(r.FormValue("userName"))
	password := r.FormValue("password")

	if fullName == "" || email == "" || userName == "" || password == "" {
		writeError(w, http.StatusBadRequest, "all fields are mandatory")
		return
	}
	if utf8.RuneCountInString(fullName) <= 3 {
		writeError(w, http.StatusBadRequest, "full name should be greater than 3 characters")
		return
	}
	if !emailRegex.MatchString(strings.ToLower(email)) {
		writeError(w, http.StatusBadRequest, "please enter a valid email")
		return
	}
	if !userNameRegex.MatchString(strings.ToLower(userName)) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}
	if !auth.ValidPassword(password) {
		writeError(w, http.StatusBadRequest, "password must contain at least one uppercase letter, one special character, one number and be at least 8 characters long")
		return
	}

	avatarSource, err := media.ImageSourceFromForm(r, "avatar")
	if err != nil {
		if errors.Is(err, media.ErrNoFile) {
			writeError(w, http.StatusBadRequest, "avatar file is required")
			return
		}
		writeFileError(w, err)
		return
	}

	coverSource, err := media.ImageSourceFromForm(r, "coverImage")
	if err != nil && !errors.Is(err, media.ErrNoFile) {
		writeFileError(w, err)
		return
	}

	created, err := h.service.Register(r.Context(), RegisterParams{
		FullName:         fullName,
		Email:            email,
		UserName:         userName,
		Password:         password,
		AvatarSource:     avatarSource,
		CoverImageSource: coverSource,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusCreated, created, "user registered successfully")
}

type loginRequest struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         Public `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identity := strings.TrimSpace(body.Email)
	if identity == "" {
		identity = strings.TrimSpace(body.UserName)
	}
	if identity == "" {
		writeError(w, http.StatusBadRequest, "username or email is required")
		return
	}
	if body.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	public, tokens, err := h.service.Login(r.Context(), identity, body.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeData(w, http.StatusOK, loginResponse{
		User:         public,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "user logged in successfully")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	if err := h.service.Logout(r.Context(), identity.ID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.clearAuthCookies(w)
	writeData(w, http.StatusOK, struct{}{}, "user logged out successfully")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken accepts the refresh token from the refreshToken cookie or
// the JSON body, in that order.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		presented = strings.TrimSpace(cookie.Value)
	}
	if presented == "" && r.Body != nil {
		var body refreshRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			presented = strings.TrimSpace(body.RefreshToken)
		}
	}

	tokens, err := h.service.Refresh(r.Context(), presented)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setAuthCookies(w, tokens)
	writeData(w, http.StatusOK, tokens, "access token refreshed")
}

type updatePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	var body updatePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.OldPassword == "" || body.NewPassword == "" || body.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, "all fields are mandatory")
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity.ID, body.OldPassword, body.NewPassword, body.ConfirmPassword); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, struct{}{}, "password has been updated successfully")
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	var body updateAccountRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	fullName := strings.TrimSpace(body.FullName)
	email := strings.TrimSpace(body.Email)
	if fullName == "" && email == "" {
		writeError(w, http.StatusBadRequest, "at least one field is required")
		return
	}
	if email != "" && !emailRegex.MatchString(strings.ToLower(email)) {
		writeError(w, http.StatusBadRequest, "please enter a valid email")
		return
	}

	updated, err := h.service.UpdateAccount(r.Context(), identity.ID, fullName, email)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, updated, "user details have been updated")
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	current, err := h.service.CurrentUser(r.Context(), identity.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, current, "user fetched successfully")
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.service.UpdateAvatar, "avatar has been updated successfully")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.service.UpdateCoverImage, "cover image has been updated successfully")
}

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field string, update func(ctx context.Context, userID, source string) (Public, error), message string) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	source, err := media.ImageSourceFromForm(r, field)
	if err != nil {
		if errors.Is(err, media.ErrNoFile) {
			writeError(w, http.StatusBadRequest, field+" file is required")
			return
		}
		writeFileError(w, err)
		return
	}

	updated, err := update(r.Context(), identity.ID, source)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, updated, message)
}

func (h *Handler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	entries, err := h.service.WatchHistory(r.Context(), identity.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, entries, "watch history fetched successfully")
}

func (h *Handler) RecordWatch(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return
	}

	videoID := r.PathValue("videoID")
	if _, err := uuid.Parse(videoID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	}

	if err := h.service.RecordWatch(r.Context(), identity.ID, videoID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, struct{}{}, "watch recorded")
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, tokens Tokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(h.issuer.AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refreshToken",
		Value:    tokens.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.issuer.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{"accessToken", "refreshToken"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIdentityTaken):
		writeError(w, http.StatusConflict, ErrIdentityTaken.Error())
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, ErrUserNotFound.Error())
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrRefreshTokenUsed):
		writeError(w, http.StatusUnauthorized, ErrRefreshTokenUsed.Error())
	case errors.Is(err, ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
	case errors.Is(err, ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, ErrPasswordMismatch.Error())
	case errors.Is(err, ErrWeakPassword):
		writeError(w, http.StatusBadRequest, ErrWeakPassword.Error())
	case errors.Is(err, ErrVideoNotFound):
		writeError(w, http.StatusNotFound, ErrVideoNotFound.Error())
	case errors.Is(err, ErrUploadFailed):
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

func writeFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, media.ErrFileTooLarge):
		writeError(w, http.StatusBadRequest, "file is too large")
	case errors.Is(err, media.ErrNotAnImage):
		writeError(w, http.StatusBadRequest, "file must be an image")
	default:
		writeError(w, http.StatusBadRequest, "failed to read file")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
