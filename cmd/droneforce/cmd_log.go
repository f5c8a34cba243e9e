package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/DF-AutoPilot/droneforce-contract/node"
	"github.com/DF-AutoPilot/droneforce-contract/task"
)

func newLogCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Hash, sign and check execution logs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "hash <file>",
			Short: "Print the SHA3-256 digest of a log or report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), task.Digest(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "sign <file>",
			Short: "Print the digest of a log and your signature over it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := opts.key()
				if err != nil {
					return err
				}
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				h, sig := task.SignLog(key, data)
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "hash:      %s\n", h)
				_, _ = fmt.Fprintf(out, "signature: %s\n", sig)
				return nil
			},
		},
		&cobra.Command{
			Use:   "check <task-id> <file>",
			Short: "Check a fetched log against a completed task's attestation",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return err
				}
				var v node.TaskView
				if err := opts.client().get(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0]), &v); err != nil {
					return err
				}
				if err := task.VerifyLogAttestation(v.Record, data); err != nil {
					return fmt.Errorf("task %s: %w", args[0], err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok: log matches %s, signed by operator %s\n", v.Record.LogHash, v.Record.Operator)
				return nil
			},
		},
	)
	return cmd
}
