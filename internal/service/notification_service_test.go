package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
)

func TestNotificationPublishPersistsAndFansOut(t *testing.T) {
	db := setupServiceDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "gema:notifications")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	svc := NewNotificationService(repository.NewNotificationRepository(db), client, "gema", nil, validator.New(), zerolog.Nop())

	created, err := svc.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  9,
		Type:    models.NotificationTaskAutoSubmitted,
		Message: "<b>Draft</b> submitted",
	})
	require.NoError(t, err)
	require.Equal(t, "Draft submitted", created.Message)

	select {
	case msg := <-sub.Channel():
		var event notificationEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		require.Equal(t, created.ID, event.Notification.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published to redis")
	}

	listed, err := svc.List(ctx, 9, dto.NotificationQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed.Items, 1)
	require.Equal(t, int64(1), listed.Unread)
}

func TestNotificationMarkRead(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validator.New(), zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Publish(ctx, dto.NotificationCreateRequest{UserID: 3, Type: models.NotificationTaskAutoSubmitted, Message: "one"})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, dto.NotificationCreateRequest{UserID: 3, Type: models.NotificationTaskAutoSubmitted, Message: "two"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.MarkRead(ctx, 4, first.ID), ErrNotificationNotFound)
	require.NoError(t, svc.MarkRead(ctx, 3, first.ID))
	require.NoError(t, svc.MarkRead(ctx, 3, first.ID))

	unread, err := svc.List(ctx, 3, dto.NotificationQuery{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread.Items, 1)
	require.Equal(t, "two", unread.Items[0].Message)
	require.Equal(t, int64(1), unread.Unread)

	all, err := svc.List(ctx, 3, dto.NotificationQuery{})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)
}

func TestNotificationPublishRejectsEmptyMessage(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validator.New(), zerolog.Nop())

	_, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		UserID:  9,
		Type:    models.NotificationTaskAutoSubmitted,
		Message: "<script></script>",
	})
	require.ErrorIs(t, err, ErrNotificationEmpty)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestNotificationFanOutTriesEveryBroker(t *testing.T) {
	db := setupServiceDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	// no server listens here; the connection is closed before use
	nc, err := nats.Connect("nats://127.0.0.1:1", nats.RetryOnFailedConnect(true), nats.MaxReconnects(0))
	require.NoError(t, err)
	nc.Close()

	svc := NewNotificationService(repository.NewNotificationRepository(db), client, "gema", nc, validator.New(), zerolog.Nop())

	err = svc.(*notificationService).fanOut(context.Background(), dto.NotificationResponse{ID: 1, Type: models.NotificationTaskAutoSubmitted})
	require.Error(t, err)
	require.ErrorContains(t, err, "redis publish")
	require.ErrorContains(t, err, "nats publish")
	require.ErrorIs(t, err, nats.ErrConnectionClosed)

	created, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		UserID:  3,
		Type:    models.NotificationTaskAutoSubmitted,
		Message: "stored even when brokers are down",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}
