package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/repository"
)

const (
	weeklyDigestKey             = "weekly_digest"
	creativeRemindersKey        = "creative_reminders"
	weeklyDigestLastSentKey     = "weekly_digest_last_sent_at"
	creativeReminderLastSentKey = "creative_reminders_last_sent_at"
	weeklyDigestInterval        = 7 * 24 * time.Hour
	creativeReminderInterval    = 72 * time.Hour
	notificationPollInterval    = 1 * time.Hour
)

// NotificationRecipients is the part of the user repository the scheduler needs.
type NotificationRecipients interface {
	ListUsersWithNotificationEnabled(ctx context.Context, notificationKey, lastSentKey string) ([]repository.NotificationRecipient, error)
	GetNotificationSetting(ctx context.Context, userID uuid.UUID, key string, defaultValue bool) (bool, error)
	SetNotificationTimestamp(ctx context.Context, userID uuid.UUID, key string, at time.Time) error
}

// SessionActivity is the part of the session repository the scheduler needs.
type SessionActivity interface {
	Totals(ctx context.Context, userID string, since time.Time) (sessions int, turns int, err error)
	LatestActivityAt(ctx context.Context, userID string) (*time.Time, error)
}

type NotificationMailer interface {
	SendWeeklyDigestEmail(to, fullName string, sessions, turns int) error
	SendCreativeReminderEmail(to, fullName string, lastSessionAt *time.Time) error
}

type NotificationScheduler struct {
	users    NotificationRecipients
	activity SessionActivity
	email    NotificationMailer
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewNotificationScheduler(users NotificationRecipients, activity SessionActivity, email NotificationMailer, logger *zap.Logger) *NotificationScheduler {
	return &NotificationScheduler{
		users:    users,
		activity: activity,
		email:    email,
		logger:   logger,
		interval: notificationPollInterval,
		now:      func() time.Time { return time.Now().UTC() },
		stopChan: make(chan struct{}),
	}
}

func (s *NotificationScheduler) Start() {
	if s.users == nil || s.activity == nil || s.email == nil {
		return
	}

	s.wg.Add(2)
	go s.loop(s.sendWeeklyDigests)
	go s.loop(s.sendCreativeReminders)

	s.logger.Info("notification scheduler started", zap.Duration("interval", s.interval))
}

// Stop signals both loops and waits for them to return.
func (s *NotificationScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *NotificationScheduler) loop(runFn func(ctx context.Context, now time.Time)) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run on startup as well as by interval.
	runFn(ctx, s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			runFn(ctx, s.now())
		}
	}
}

func (s *NotificationScheduler) sendWeeklyDigests(ctx context.Context, now time.Time) {
	recipients, err := s.users.ListUsersWithNotificationEnabled(ctx, weeklyDigestKey, weeklyDigestLastSentKey)
	if err != nil {
		s.logger.Error("weekly digest: failed to list recipients", zap.Error(err))
		return
	}

	for _, recipient := range recipients {
		if !shouldSendByLastSent(recipient.LastSentAtRaw, weeklyDigestInterval, now) {
			continue
		}

		sessions, turns, statsErr := s.activity.Totals(ctx, recipient.ID.String(), now.Add(-weeklyDigestInterval))
		if statsErr != nil {
			s.logger.Error("weekly digest: failed to load totals", zap.Stringer("user_id", recipient.ID), zap.Error(statsErr))
			continue
		}

		if sessions == 0 && turns == 0 {
			continue
		}

		if !s.stillEnabled(ctx, recipient.ID, weeklyDigestKey) {
			continue
		}

		if err := s.email.SendWeeklyDigestEmail(recipient.Email, recipient.FullName, sessions, turns); err != nil {
			s.logger.Error("weekly digest: send failed", zap.String("email", recipient.Email), zap.Error(err))
			continue
		}

		if err := s.users.SetNotificationTimestamp(ctx, recipient.ID, weeklyDigestLastSentKey, now); err != nil {
			s.logger.Error("weekly digest: failed to persist last sent at", zap.Stringer("user_id", recipient.ID), zap.Error(err))
		}
	}
}

func (s *NotificationScheduler) sendCreativeReminders(ctx context.Context, now time.Time) {
	recipients, err := s.users.ListUsersWithNotificationEnabled(ctx, creativeRemindersKey, creativeReminderLastSentKey)
	if err != nil {
		s.logger.Error("creative reminders: failed to list recipients", zap.Error(err))
		return
	}

	for _, recipient := range recipients {
		if !shouldSendByLastSent(recipient.LastSentAtRaw, creativeReminderInterval, now) {
			continue
		}

		lastActivityAt, activityErr := s.activity.LatestActivityAt(ctx, recipient.ID.String())
		if activityErr != nil {
			s.logger.Error("creative reminders: failed to load latest activity", zap.Stringer("user_id", recipient.ID), zap.Error(activityErr))
			continue
		}

		referenceTime := reminderReferenceTime(lastActivityAt, recipient.CreatedAt)
		if now.Sub(referenceTime) < creativeReminderInterval {
			continue
		}

		if !s.stillEnabled(ctx, recipient.ID, creativeRemindersKey) {
			continue
		}

		if err := s.email.SendCreativeReminderEmail(recipient.Email, recipient.FullName, lastActivityAt); err != nil {
			s.logger.Error("creative reminders: send failed", zap.String("email", recipient.Email), zap.Error(err))
			continue
		}

		if err := s.users.SetNotificationTimestamp(ctx, recipient.ID, creativeReminderLastSentKey, now); err != nil {
			s.logger.Error("creative reminders: failed to persist last sent at", zap.Stringer("user_id", recipient.ID), zap.Error(err))
		}
	}
}

// stillEnabled re-reads the preference before each send; users can opt out
// while a pass is running.
func (s *NotificationScheduler) stillEnabled(ctx context.Context, userID uuid.UUID, key string) bool {
	enabled, err := s.users.GetNotificationSetting(ctx, userID, key, false)
	if err != nil {
		s.logger.Warn("notification setting lookup failed", zap.Stringer("user_id", userID), zap.String("key", key), zap.Error(err))
		return false
	}
	return enabled
}

func shouldSendByLastSent(lastSentRaw string, minInterval time.Duration, now time.Time) bool {
	if lastSentRaw == "" {
		return true
	}

	lastSentAt, err := time.Parse(time.RFC3339, lastSentRaw)
	if err != nil {
		return true
	}

	return now.Sub(lastSentAt) >= minInterval
}

func reminderReferenceTime(lastActivityAt *time.Time, createdAt time.Time) time.Time {
	if lastActivityAt != nil && !lastActivityAt.IsZero() {
		return lastActivityAt.UTC()
	}

	return createdAt.UTC()
}
