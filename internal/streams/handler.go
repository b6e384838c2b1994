package streams

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/family-shield/internal/models"
	"gorm.io/gorm"
)

// HandleActivityEvent returns a handler that moves users.last_sign_in_at
// forward. Older events never move it backwards. Unknown users are logged
// and acknowledged.
func HandleActivityEvent(db *gorm.DB) func(context.Context, ActivityEvent) error {
	return func(ctx context.Context, event ActivityEvent) error {
		if event.UserID == "" && event.Email == "" {
			slog.Warn("Activity event without user reference", "source", event.Source)
			return nil
		}

		if event.UserID != "" {
			if _, err := uuid.Parse(event.UserID); err != nil {
				slog.Warn("Activity event with malformed user id", "user_id", event.UserID, "source", event.Source)
				return nil
			}
		}

		// Clock skew on the producer must not push activity into the future.
		now := time.Now()
		at := event.OccurredAt
		if at.IsZero() || at.After(now) {
			at = now
		}
		at = at.UTC()

		q := db.WithContext(ctx).Model(&models.User{})
		if event.UserID != "" {
			q = q.Where("id = ?", event.UserID)
		} else {
			q = q.Where("email = ?", event.Email)
		}

		res := q.Where("(last_sign_in_at IS NULL OR last_sign_in_at < ?)", at).
			Update("last_sign_in_at", at)
		if res.Error != nil {
			return fmt.Errorf("failed to update last sign-in: %w", res.Error)
		}

		slog.Debug("Activity recorded",
			"user_id", event.UserID,
			"source", event.Source,
			"updated", res.RowsAffected,
		)
		return nil
	}
}
