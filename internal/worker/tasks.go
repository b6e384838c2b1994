package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskInactivityCheck = "shield:inactivity_check"
	TaskNotifyGuardians = "shield:notify_guardians"
	TaskExpireTokens    = "token:expire"
)

// notifyGuardiansPayload identifies whose guardians to contact.
type notifyGuardiansPayload struct {
	UserID string `json:"user_id"`
}

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any Enqueue functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// NewInactivityCheckTask builds the detector task. Unique keeps a
// double-firing scheduler from running two detector passes at once.
func NewInactivityCheckTask() *asynq.Task {
	return asynq.NewTask(
		TaskInactivityCheck,
		nil, // Empty payload - the detector scans all enabled shields
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Hour),
	)
}

// NewExpireTokensTask builds the stale token sweep task.
func NewExpireTokensTask() *asynq.Task {
	return asynq.NewTask(
		TaskExpireTokens,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
		asynq.Unique(30*time.Minute),
	)
}

// NewNotifyGuardiansTask builds the delayed guardian notification for userID.
func NewNotifyGuardiansTask(userID string, delay time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(notifyGuardiansPayload{UserID: userID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskNotifyGuardians,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(7*24*time.Hour),
		asynq.ProcessIn(delay),
		asynq.Unique(delay+time.Hour), // One pending notification per user
	), nil
}

// EnqueueNotifyGuardians schedules guardian notification for userID after
// delay. A notification already queued for the user is left in place.
func EnqueueNotifyGuardians(ctx context.Context, userID string, delay time.Duration) error {
	if client == nil {
		return errors.New("asynq client not initialized")
	}

	task, err := NewNotifyGuardiansTask(userID, delay)
	if err != nil {
		return err
	}

	_, err = client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// GuardianScheduler defers guardian notification through the task queue.
type GuardianScheduler struct {
	Delay time.Duration
}

// ScheduleGuardianNotification enqueues the notification after s.Delay.
func (s GuardianScheduler) ScheduleGuardianNotification(ctx context.Context, userID string) error {
	return EnqueueNotifyGuardians(ctx, userID, s.Delay)
}
