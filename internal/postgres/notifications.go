package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pyquest-jobs/internal/domain"
)

// InsertNotification stores a notification, assigning its id and creation time
func (r *Repository) InsertNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	n = prepareNotification(n)
	metadata, err := marshalMetadata(n.Metadata)
	if err != nil {
		return n, err
	}

	query := `
		INSERT INTO notifications (id, user_id, type, title, message, metadata, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Message, metadata, n.Read, n.CreatedAt)
	if err != nil {
		return n, fmt.Errorf("inserting notification: %w", err)
	}
	return n, nil
}

// InsertNotifications stores several notifications in one round trip
func (r *Repository) InsertNotifications(ctx context.Context, notifications []domain.Notification) ([]domain.Notification, error) {
	if len(notifications) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, metadata, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	stored := make([]domain.Notification, 0, len(notifications))
	for _, n := range notifications {
		n = prepareNotification(n)
		metadata, err := marshalMetadata(n.Metadata)
		if err != nil {
			return nil, err
		}
		batch.Queue(query, n.ID, n.UserID, n.Type, n.Title, n.Message, metadata, n.Read, n.CreatedAt)
		stored = append(stored, n)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stored {
		if _, err := br.Exec(); err != nil {
			return nil, fmt.Errorf("batch inserting notifications: %w", err)
		}
	}
	return stored, nil
}

func prepareNotification(n domain.Notification) domain.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}
