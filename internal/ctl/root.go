// Package ctl implements the clinicctl operator commands.
package ctl

import (
	"context"
	"fmt"
	"time"

	"clinicflow/internal/queue/repository"
	"clinicflow/pkg/config"

	"github.com/spf13/cobra"
)

// Env is what a command operates on once the store is connected.
type Env struct {
	Config    *config.Config
	Sequences repository.SequenceRepository
	Migrate   func(ctx context.Context) error
	Close     func()
}

// Opener connects to the store. An empty driver means the configured one.
type Opener func(ctx context.Context, driver string) (*Env, error)

func NewRoot(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operate the clinic queue store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Duration("timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(newMigrateCommand(open))
	root.AddCommand(newCountersCommand(open))
	return root
}

func withEnv(cmd *cobra.Command, open Opener, driver string, fn func(ctx context.Context, env *Env) error) error {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	env, err := open(ctx, driver)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if env.Close != nil {
		defer env.Close()
	}
	return fn(ctx, env)
}
