package main

import (
	"fmt"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/transform"
	"github.com/spf13/cobra"
)

func newHealthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the local speech service is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.checkLocalService(cmd)
			if err != nil {
				return err
			}

			a.printf("Local speech service at %s is healthy\n", a.cfg.Speech.ServiceURL)

			return nil
		},
	}
}

func newVoicesCommand(a *app) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices of a speech backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed(flagBackend) {
				backend = a.cfg.Speech.Backend
			}

			voices := transform.Voices(backend)
			if voices == nil {
				return fmt.Errorf("%w: unknown speech backend %q", core.ErrInvalidArgument, backend)
			}

			def := transform.DefaultVoice(backend)
			for _, voice := range voices {
				marker := " "
				if voice == def {
					marker = "*"
				}

				a.printf("%s %s\n", marker, voice)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&backend, flagBackend, "", "speech backend: openai or local")

	return cmd
}
