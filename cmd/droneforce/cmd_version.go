package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DF-AutoPilot/droneforce-contract/internal/version"
	"github.com/DF-AutoPilot/droneforce-contract/update"
)

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print droneforce version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "droneforce %s (built %s)\n", version.FullVersion(), version.BuildDate)
			if !check {
				return nil
			}
			rel, err := update.New("droneforce", version.Version).CheckForUpdate(cmd.Context())
			if err != nil {
				return err
			}
			if rel == nil {
				_, _ = fmt.Fprintln(out, "up to date")
				return nil
			}
			_, _ = fmt.Fprintf(out, "%s is available; run `droneforce update`\n", rel.Version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Replace this binary with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := update.New("droneforce", version.Version)
			rel, err := u.CheckForUpdate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rel == nil {
				_, _ = fmt.Fprintln(out, "already up to date")
				return nil
			}
			if err := u.ApplyUpdate(cmd.Context(), rel); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "updated to %s\n", rel.Version)
			return nil
		},
	}
}
