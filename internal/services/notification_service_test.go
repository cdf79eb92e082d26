package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/taskstream/taskstream-api/internal/models"
	"github.com/taskstream/taskstream-api/internal/realtime"
	"github.com/taskstream/taskstream-api/internal/repository"
)

type notificationTestEnv struct {
	db        *gorm.DB
	publisher *recordingPublisher
	repo      repository.NotificationRepository
	service   *NotificationService
}

func setupNotificationTestEnv(t *testing.T) *notificationTestEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Notification{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		sqlDB.Close()
	})

	publisher := &recordingPublisher{}
	repo := repository.NewNotificationRepository(db)
	return &notificationTestEnv{
		db:        db,
		publisher: publisher,
		repo:      repo,
		service:   NewNotificationService(repo, publisher),
	}
}

func TestNotificationCreate_PushesToRecipientOnly(t *testing.T) {
	env := setupNotificationTestEnv(t)

	notification, err := env.service.Create(CreateNotificationInput{
		UserID:  7,
		Message: "New task assigned: Write report",
		Type:    models.NotificationTaskAssigned,
	})
	require.NoError(t, err)
	require.False(t, notification.Read)
	require.NotZero(t, notification.ID)

	require.Empty(t, env.publisher.broadcasts)
	require.Len(t, env.publisher.notified, 1)
	require.Equal(t, uint64(7), env.publisher.notified[0].UserID)
	require.Equal(t, realtime.EventNotificationNew, env.publisher.notified[0].Event)
}

func TestNotificationList_NewestFirst(t *testing.T) {
	env := setupNotificationTestEnv(t)

	first, err := env.service.Create(CreateNotificationInput{UserID: 1, Message: "first", Type: models.NotificationTaskAssigned})
	require.NoError(t, err)
	second, err := env.service.Create(CreateNotificationInput{UserID: 1, Message: "second", Type: models.NotificationTaskReassigned})
	require.NoError(t, err)
	_, err = env.service.Create(CreateNotificationInput{UserID: 2, Message: "other user", Type: models.NotificationTaskAssigned})
	require.NoError(t, err)

	notifications, err := env.service.ListForUser(1)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	require.Equal(t, second.ID, notifications[0].ID)
	require.Equal(t, first.ID, notifications[1].ID)
}

func TestNotificationMarkAsRead(t *testing.T) {
	env := setupNotificationTestEnv(t)

	notification, err := env.service.Create(CreateNotificationInput{UserID: 1, Message: "hello", Type: models.NotificationTaskAssigned})
	require.NoError(t, err)

	err = env.service.MarkAsRead(notification.ID, 1)
	require.NoError(t, err)

	notifications, err := env.service.ListForUser(1)
	require.NoError(t, err)
	require.True(t, notifications[0].Read)

	// Marking again is a no-op.
	err = env.service.MarkAsRead(notification.ID, 1)
	require.NoError(t, err)
}

func TestNotificationMarkAsRead_OtherUsersNotification(t *testing.T) {
	env := setupNotificationTestEnv(t)

	notification, err := env.service.Create(CreateNotificationInput{UserID: 1, Message: "hello", Type: models.NotificationTaskAssigned})
	require.NoError(t, err)

	// Another user's notification reads as not found, never as forbidden.
	err = env.service.MarkAsRead(notification.ID, 2)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	err = env.service.MarkAsRead(99999, 1)
	require.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestNotificationMarkAllAsRead_Idempotent(t *testing.T) {
	env := setupNotificationTestEnv(t)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := env.service.Create(CreateNotificationInput{UserID: 1, Message: msg, Type: models.NotificationTaskAssigned})
		require.NoError(t, err)
	}
	other, err := env.service.Create(CreateNotificationInput{UserID: 2, Message: "untouched", Type: models.NotificationTaskAssigned})
	require.NoError(t, err)

	require.NoError(t, env.service.MarkAllAsRead(1))
	require.NoError(t, env.service.MarkAllAsRead(1))

	notifications, err := env.service.ListForUser(1)
	require.NoError(t, err)
	for _, n := range notifications {
		require.True(t, n.Read)
	}

	others, err := env.service.ListForUser(2)
	require.NoError(t, err)
	require.Equal(t, other.ID, others[0].ID)
	require.False(t, others[0].Read)
}
