package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// NormalizeIdentity lowercases and trims a username or email so lookups
// and stored values compare consistently.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

const userColumns = `
	id, user_name, email, full_name, password_hash, avatar_url,
	COALESCE(cover_image_url, ''), refresh_token, refresh_token_expires_at,
	created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.UserName, &u.Email, &u.FullName, &u.PasswordHash, &u.AvatarURL,
		&u.CoverImageURL, &u.RefreshToken, &u.RefreshTokenExpiresAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// GetByIdentity resolves a username or email, case-insensitively. Returns
// sql.ErrNoRows when no account matches.
func (r *Repository) GetByIdentity(ctx context.Context, identity string) (User, error) {
	identity = NormalizeIdentity(identity)

	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE user_name = $1 OR email = $1
	`, identity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by identity: %w", err)
	}

	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return u, nil
}

type CreateParams struct {
	UserName      string
	Email         string
	FullName      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
}

// Create inserts a new account. Username and email are stored lowercase;
// a unique violation on either surfaces as ErrIdentityTaken.
func (r *Repository) Create(ctx context.Context, p CreateParams) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()
	var coverImage any
	if p.CoverImageURL != "" {
		coverImage = p.CoverImageURL
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, user_name, email, full_name, password_hash, avatar_url, cover_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, id.String(), NormalizeIdentity(p.UserName), NormalizeIdentity(p.Email),
		strings.TrimSpace(p.FullName), p.PasswordHash, p.AvatarURL, coverImage, now)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return User{}, ErrIdentityTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return r.GetByID(ctx, id.String())
}

// SetRefreshToken overwrites the single stored refresh token; passing nil
// clears it. Writing a new value implicitly invalidates the previous one.
func (r *Repository) SetRefreshToken(ctx context.Context, id string, token *string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $2, refresh_token_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}

	return nil
}

// UpdateAccount changes full name and/or email; empty arguments leave the
// stored value untouched.
func (r *Repository) UpdateAccount(ctx context.Context, id, fullName, email string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET full_name = COALESCE(NULLIF($2, ''), full_name),
		    email = COALESCE(NULLIF($3, ''), email),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING`+userColumns+`
	`, id, strings.TrimSpace(fullName), NormalizeIdentity(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		if isPgError(err, pgUniqueViolation) {
			return User{}, ErrIdentityTaken
		}
		return User{}, fmt.Errorf("update account: %w", err)
	}

	return u, nil
}

// UpdatePassword stores a new password hash. Hashing happens in the
// service before this call; no other update path touches the hash, so an
// unrelated profile update can never double-hash a stored digest.
func (r *Repository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

func (r *Repository) UpdateAvatar(ctx context.Context, id, avatarURL string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET avatar_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING`+userColumns+`
	`, id, avatarURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("update avatar: %w", err)
	}

	return u, nil
}

func (r *Repository) UpdateCoverImage(ctx context.Context, id, coverImageURL string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET cover_image_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING`+userColumns+`
	`, id, coverImageURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("update cover image: %w", err)
	}

	return u, nil
}

// WatchHistory returns the caller's watched videos, most recent first,
// each joined with the owning channel's public fields.
func (r *Repository) WatchHistory(ctx context.Context, id string) ([]WatchHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.title, v.thumbnail_url, h.watched_at,
		       o.full_name, o.user_name, o.avatar_url
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		JOIN users o ON o.id = v.owner_id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	entries := make([]WatchHistoryEntry, 0)
	for rows.Next() {
		var e WatchHistoryEntry
		if err := rows.Scan(&e.VideoID, &e.Title, &e.ThumbnailURL, &e.WatchedAt,
			&e.Owner.FullName, &e.Owner.UserName, &e.Owner.Avatar); err != nil {
			return nil, fmt.Errorf("scan watch history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}

	return entries, nil
}

// AddWatchHistory records a watch; re-watching bumps the entry to the top
// of the history.
func (r *Repository) AddWatchHistory(ctx context.Context, userID, videoID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watch_history (user_id, video_id, watched_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, video_id)
		DO UPDATE SET watched_at = NOW()
	`, userID, videoID)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return ErrVideoNotFound
		}
		return fmt.Errorf("insert watch history: %w", err)
	}

	return nil
}

// ClearExpiredRefreshTokens nulls out stored refresh tokens whose expiry
// has passed. Verification would reject them anyway; this keeps dead
// tokens from lingering in the table.
func (r *Repository) ClearExpiredRefreshTokens(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL
		WHERE refresh_token IS NOT NULL
		  AND refresh_token_expires_at IS NOT NULL
		  AND refresh_token_expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
