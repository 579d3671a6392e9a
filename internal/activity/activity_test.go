package activity

import (
	"context"
	"testing"

	"clinicflow/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLog_ListByPatientNewestFirst(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, model.Activity{PatientRef: "p-1", Action: model.ActivityQueueRegistered}))
	require.NoError(t, log.Append(ctx, model.Activity{PatientRef: "p-2", Action: model.ActivityQueueRegistered}))
	require.NoError(t, log.Append(ctx, model.Activity{PatientRef: "p-1", Action: model.ActivityQueueCalled}))

	got, err := log.ListByPatient(ctx, "p-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ActivityQueueCalled, got[0].Action)
	assert.Equal(t, model.ActivityQueueRegistered, got[1].Action)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	limited, err := log.ListByPatient(ctx, "p-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
