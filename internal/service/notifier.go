package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pyquest-jobs/internal/domain"
)

// Notifier stores notifications and forwards them to connected clients
type Notifier struct {
	store  NotificationStore
	hub    Broadcaster
	logger *slog.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(store NotificationStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		store:  store,
		logger: logger,
	}
}

// SetHub sets the realtime hub notifications are published to
func (n *Notifier) SetHub(hub Broadcaster) {
	n.hub = hub
}

// Notify stores one notification and publishes it
func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	stored, err := n.store.InsertNotification(ctx, note)
	if err != nil {
		return fmt.Errorf("notifying %s (%s): %w", note.UserID, note.Type, err)
	}
	if n.hub != nil {
		n.hub.PublishNotification(stored)
	}
	return nil
}

// NotifyAll stores notifications in one round trip and publishes them
func (n *Notifier) NotifyAll(ctx context.Context, notes []domain.Notification) (int, error) {
	if len(notes) == 0 {
		return 0, nil
	}
	stored, err := n.store.InsertNotifications(ctx, notes)
	if err != nil {
		return 0, fmt.Errorf("notifying %d users: %w", len(notes), err)
	}
	if n.hub != nil {
		for _, note := range stored {
			n.hub.PublishNotification(note)
		}
	}
	return len(stored), nil
}
