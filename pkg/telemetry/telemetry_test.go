package telemetry

import (
	"context"
	"testing"

	"clinicflow/pkg/logger"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv(EnvOTLPEndpoint, "")

	shutdown := Setup("clinicflow-test", logger.Discard())
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}
