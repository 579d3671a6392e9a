package mongo

import (
	"testing"

	"clinicflow/internal/queue/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestQueueEntriesIndexes(t *testing.T) {
	byName := map[string]*options.IndexOptions{}
	for _, m := range QueueEntriesIndexes {
		require.NotNil(t, m.Options)
		require.NotNil(t, m.Options.Name)
		byName[*m.Options.Name] = m.Options
	}

	active := byName[repository.ActivePatientIndex]
	require.NotNil(t, active)
	assert.True(t, *active.Unique)
	assert.Equal(t, bson.M{"active": true}, active.PartialFilterExpression)

	seq := byName[repository.DaySequenceIndex]
	require.NotNil(t, seq)
	assert.True(t, *seq.Unique)

	assert.Contains(t, byName, CallOrderIndex)
}

func TestCollections_HaveValidators(t *testing.T) {
	for name, def := range collections() {
		assert.NotEmpty(t, def.Validator, name)
		assert.NotEmpty(t, def.Indexes, name)
	}
}
