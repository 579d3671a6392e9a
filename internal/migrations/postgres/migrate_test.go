package postgres

import (
	"strings"
	"testing"

	"clinicflow/internal/queue/repository"

	"github.com/stretchr/testify/assert"
)

func TestMigrations_Ordered(t *testing.T) {
	for i, m := range Migrations {
		assert.Equal(t, i+1, m.Version, "migration %s out of order", m.Name)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
	}
}

func TestMigrations_DeclareQueueConstraints(t *testing.T) {
	var all strings.Builder
	for _, m := range Migrations {
		all.WriteString(m.SQL)
	}
	ddl := all.String()

	assert.Contains(t, ddl, repository.ActivePatientIndex)
	assert.Contains(t, ddl, "WHERE active")
	assert.Contains(t, ddl, repository.DaySequenceIndex)
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS sequence_counters")
}
