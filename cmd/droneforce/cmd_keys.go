package main

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DF-AutoPilot/droneforce-contract/node"
	"github.com/DF-AutoPilot/droneforce-contract/server"
	"github.com/DF-AutoPilot/droneforce-contract/task"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

func newKeygenCmd(opts *globalOpts) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing keypair",
		Long: `Generate a new ed25519 keypair and write it to --keypair.
The file uses the JSON byte-array format of Solana keypair files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.Keypair); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.Keypair)
			}
			key, err := txn.GenerateKeypair()
			if err != nil {
				return err
			}
			if err := txn.SaveKeypair(opts.Keypair, key); err != nil {
				return err
			}
			id, err := identityOf(key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nidentity: %s\n", opts.Keypair, id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keypair")
	return cmd
}

func newAddressCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "address [task-id]",
		Short: "Print your identity, or the ledger address of a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				addr, err := node.TaskAddress(args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, addr)
				return nil
			}
			key, err := opts.key()
			if err != nil {
				return err
			}
			id, err := identityOf(key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, id)
			return nil
		},
	}
}

func newLoginCmd(opts *globalOpts) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the gateway and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("DRONEFORCE_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or $DRONEFORCE_PASSWORD is required")
			}
			var resp server.LoginResponse
			req := map[string]string{"username": username, "password": password}
			if err := opts.client().post(cmd.Context(), "/api/auth/login", req, &resp); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(opts.TokenFile), 0o700); err != nil {
				return fmt.Errorf("create token dir: %w", err)
			}
			if err := os.WriteFile(opts.TokenFile, []byte(resp.Token+"\n"), 0o600); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s until %s\n", username, resp.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "admin", "gateway user")
	cmd.Flags().StringVarP(&password, "password", "p", "", "gateway password (or $DRONEFORCE_PASSWORD)")
	return cmd
}

func newStatusCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result map[string]string
			if err := opts.client().get(cmd.Context(), "/api/status", &result); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "status:  %s\n", result["status"])
			_, _ = fmt.Fprintf(out, "version: %s\n", result["version"])
			return nil
		},
	}
}

func identityOf(key ed25519.PrivateKey) (task.Identity, error) {
	return task.IdentityFromPublicKey(key.Public().(ed25519.PublicKey))
}
