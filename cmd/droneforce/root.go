package main

import (
	"crypto/ed25519"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DF-AutoPilot/droneforce-contract/internal/version"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

const defaultServer = "http://localhost:9090"

// globalOpts holds the persistent flags shared by every subcommand.
type globalOpts struct {
	Server    string
	Token     string
	TokenFile string
	Keypair   string
}

// configDir is where the keypair and login token live by default.
func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "droneforce")
	}
	return ".droneforce"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newRootCmd builds the command tree. Each call gets its own option set so
// tests can run commands independently.
func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:   "droneforce",
		Short: "Drone task attestation ledger client",
		Long: `droneforce - drone task attestation ledger client

Creates, accepts, completes and verifies drone tasks. Transactions are signed
locally with your keypair and submitted to a droneforced gateway.`,
		Version:       version.FullVersion(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	dir := configDir()
	root.PersistentFlags().StringVar(&opts.Server, "server", envOr("DRONEFORCE_SERVER", defaultServer), "gateway URL (or $DRONEFORCE_SERVER)")
	root.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("DRONEFORCE_TOKEN"), "JWT auth token (or $DRONEFORCE_TOKEN)")
	root.PersistentFlags().StringVar(&opts.TokenFile, "token-file", filepath.Join(dir, "token"), "file written by login")
	root.PersistentFlags().StringVar(&opts.Keypair, "keypair", filepath.Join(dir, "id.json"), "signing keypair file")

	root.AddCommand(
		newKeygenCmd(opts),
		newAddressCmd(opts),
		newLoginCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
		newUpdateCmd(),
		newTaskCmd(opts),
		newTasksCmd(opts),
		newEventsCmd(opts),
		newLogCmd(opts),
	)
	return root
}

func execute(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

// client returns a gateway client, preferring --token over the saved login.
func (o *globalOpts) client() *Client {
	token := o.Token
	if token == "" {
		if b, err := os.ReadFile(o.TokenFile); err == nil {
			token = strings.TrimSpace(string(b))
		}
	}
	return &Client{
		BaseURL:    strings.TrimRight(o.Server, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (o *globalOpts) key() (ed25519.PrivateKey, error) {
	key, err := txn.LoadKeypair(o.Keypair)
	if err != nil {
		return nil, fmt.Errorf("%w (run `droneforce keygen` first)", err)
	}
	return key, nil
}

// title renders enum names for people, e.g. "accepted" -> "Accepted".
func title(s string) string {
	return cases.Title(language.English).String(s)
}
