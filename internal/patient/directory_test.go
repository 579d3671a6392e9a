package patient

import (
	"context"
	"testing"

	"clinicflow/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDirectory(t *testing.T) {
	dir := NewStaticDirectory("CN")
	dir.Put(model.PatientSummary{Ref: "P-1", Name: "Li Wei", Phone: "138 0013 8000"})

	got, err := dir.Summary(context.Background(), "P-1")
	require.NoError(t, err)
	assert.Equal(t, "Li Wei", got.Name)
	assert.Equal(t, "+8613800138000", got.Phone)

	_, err = dir.Summary(context.Background(), "P-2")
	assert.ErrorIs(t, err, ErrNotFound)
}
