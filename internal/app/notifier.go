package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okian/duel/internal/adapters/mq/queue"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
)

// Notifier tells interested clients that ratings of a group changed.
// Notify must not block and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, groupID string, items []string)
}

// queueNotifier hands changes to the notification queue. A full queue drops
// the change.
type queueNotifier struct {
	queue  queue.Queue
	logger logger.Logger
}

func newQueueNotifier(q queue.Queue, l logger.Logger) *queueNotifier {
	return &queueNotifier{queue: q, logger: l.Named("notifier")}
}

func (n *queueNotifier) Notify(ctx context.Context, groupID string, items []string) {
	c := model.Change{
		ID:      uuid.NewString(),
		GroupID: groupID,
		Items:   append([]string(nil), items...),
		At:      time.Now().UTC(),
	}
	// The request context may already be done once the response is written.
	if !n.queue.Enqueue(context.WithoutCancel(ctx), c) {
		n.logger.Warn(ctx, "change notification dropped",
			logger.String("group_id", groupID),
			logger.String("change_id", c.ID),
		)
	}
}
