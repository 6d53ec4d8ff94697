package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
)

func ptrUint(v uint) *uint {
	return &v
}

func TestActivityServiceRecordMasksSensitiveMetadata(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), zerolog.Nop())

	err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "Admin",
		Action:     models.ActivityTaskSweepTriggered,
		EntityType: "Task",
		EntityID:   ptrUint(5),
		Metadata: map[string]interface{}{
			"api_token": "abc",
			"submitted": 3,
		},
	})
	require.NoError(t, err)

	list, err := svc.List(context.Background(), dto.ActivityQuery{Action: models.ActivityTaskSweepTriggered})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	entry := list.Items[0]
	require.Equal(t, "admin", entry.ActorRole)
	require.Equal(t, "task", entry.EntityType)
	require.Equal(t, "***", entry.Metadata["api_token"])
	require.Equal(t, json.Number("3"), entry.Metadata["submitted"])
	require.Equal(t, int64(1), list.Pagination.TotalItems)
}

func TestActivityServiceRejectsIncompleteEntries(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), zerolog.Nop())

	require.Error(t, svc.Record(context.Background(), ActivityEntry{EntityType: "task"}))
	require.Error(t, svc.Record(context.Background(), ActivityEntry{Action: models.ActivitySweepTriggered}))

	require.NoError(t, svc.Record(context.Background(), ActivityEntry{Action: models.ActivitySweepTriggered, EntityType: "sweep"}))
	list, err := svc.List(context.Background(), dto.ActivityQuery{})
	require.NoError(t, err)
	require.Equal(t, "system", list.Items[0].ActorRole)
}

func TestActivityServiceListFilters(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewActivityService(repository.NewActivityLogRepository(db), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, ActivityEntry{ActorID: 9, ActorRole: "teacher", Action: models.ActivityProblemCreated, EntityType: "problem", EntityID: ptrUint(1)}))
	require.NoError(t, svc.Record(ctx, ActivityEntry{ActorID: 9, ActorRole: "teacher", Action: models.ActivityTestCasesAdded, EntityType: "problem", EntityID: ptrUint(1)}))
	require.NoError(t, svc.Record(ctx, ActivityEntry{ActorID: 2, ActorRole: "teacher", Action: models.ActivityProblemCreated, EntityType: "problem", EntityID: ptrUint(2)}))

	byEntity, err := svc.List(ctx, dto.ActivityQuery{EntityType: "problem", EntityID: 1})
	require.NoError(t, err)
	require.Len(t, byEntity.Items, 2)
	require.Equal(t, models.ActivityTestCasesAdded, byEntity.Items[0].Action)

	byActor, err := svc.List(ctx, dto.ActivityQuery{ActorID: 2})
	require.NoError(t, err)
	require.Len(t, byActor.Items, 1)

	future, err := svc.List(ctx, dto.ActivityQuery{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Empty(t, future.Items)
	require.Zero(t, future.Pagination.TotalItems)

	paged, err := svc.List(ctx, dto.ActivityQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
	require.Equal(t, int64(3), paged.Pagination.TotalItems)
}
