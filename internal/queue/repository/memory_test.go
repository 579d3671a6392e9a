package repository_test

import (
	"testing"

	"clinicflow/internal/queue/repository"
	"clinicflow/internal/queue/repository/repotest"
)

func TestMemorySequenceRepository(t *testing.T) {
	repotest.SequenceContract(t, repository.NewMemorySequenceRepository())
}

func TestMemoryQueueEntryRepository(t *testing.T) {
	repotest.QueueEntryContract(t, repository.NewMemoryQueueEntryRepository(), "2025-04-30")
}
