package channel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Profile loads the channel owned by username together with its incoming
// and outgoing subscription counts and whether viewerID is among its
// subscribers. The counts are two indexed scans over the subscriptions
// table; no further aggregation machinery is needed.
func (r *Repository) Profile(ctx context.Context, username, viewerID string) (Profile, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	var p Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.user_name, u.email, u.full_name, u.avatar_url,
		       COALESCE(u.cover_image_url, ''),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
		       EXISTS (
		           SELECT 1 FROM subscriptions s
		           WHERE s.channel_id = u.id AND s.subscriber_id = $2
		       )
		FROM users u
		WHERE u.user_name = $1
	`, username, viewerID).Scan(
		&p.ID, &p.UserName, &p.Email, &p.FullName, &p.Avatar, &p.CoverImage,
		&p.SubscribersCount, &p.ChannelsSubscribedToCount, &p.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrChannelNotFound
		}
		return Profile{}, fmt.Errorf("query channel profile: %w", err)
	}

	return p, nil
}

// Subscribe adds a subscriber -> channel edge. Subscribing twice is a
// no-op; subscribing to yourself is rejected.
func (r *Repository) Subscribe(ctx context.Context, subscriberID, channelUsername string) error {
	channelID, err := r.channelID(ctx, channelUsername)
	if err != nil {
		return err
	}
	if channelID == subscriberID {
		return ErrSelfSubscribe
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate subscription id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, subscriber_id, channel_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscriber_id, channel_id) DO NOTHING
	`, id.String(), subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	return nil
}

// Unsubscribe removes the edge if present; removing an absent edge is a
// no-op.
func (r *Repository) Unsubscribe(ctx context.Context, subscriberID, channelUsername string) error {
	channelID, err := r.channelID(ctx, channelUsername)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		DELETE FROM subscriptions
		WHERE subscriber_id = $1 AND channel_id = $2
	`, subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	return nil
}

func (r *Repository) channelID(ctx context.Context, username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE user_name = $1`, username).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrChannelNotFound
		}
		return "", fmt.Errorf("query channel id: %w", err)
	}

	return id, nil
}
