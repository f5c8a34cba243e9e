package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/node"
	"github.com/DF-AutoPilot/droneforce-contract/task"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

// receipt is the part of node.Receipt the CLI prints. The event itself is
// left out; `droneforce events` shows it.
type receipt struct {
	TxID    task.Hash      `json:"tx_id"`
	TaskID  string         `json:"task_id"`
	Address ledger.Address `json:"address"`
	Status  task.Status    `json:"status"`
	Kind    string         `json:"kind"`
	Seq     uint64         `json:"seq"`
}

// submit signs ins with the keypair and posts it to the gateway.
func (o *globalOpts) submit(ctx context.Context, out io.Writer, ins txn.Instruction) error {
	key, err := o.key()
	if err != nil {
		return err
	}
	return o.submitWith(ctx, out, key, ins)
}

func (o *globalOpts) submitWith(ctx context.Context, out io.Writer, key ed25519.PrivateKey, ins txn.Instruction) error {
	tx, err := txn.Sign(ins, key)
	if err != nil {
		return err
	}
	var r receipt
	if err := o.client().post(ctx, "/api/transactions", tx, &r); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", r.Kind, r.TaskID)
	_, _ = fmt.Fprintf(out, "  status:  %s\n", title(r.Status.String()))
	_, _ = fmt.Fprintf(out, "  address: %s\n", r.Address)
	_, _ = fmt.Fprintf(out, "  tx:      %s\n", r.TxID)
	_, _ = fmt.Fprintf(out, "  seq:     %d\n", r.Seq)
	return nil
}

func newTaskCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, accept, complete, verify or show a task",
	}
	cmd.AddCommand(
		newTaskCreateCmd(opts),
		newTaskAcceptCmd(opts),
		newTaskCompleteCmd(opts),
		newTaskVerifyCmd(opts),
		newTaskShowCmd(opts),
	)
	return cmd
}

func newTaskCreateCmd(opts *globalOpts) *cobra.Command {
	var (
		args      task.CreateArgs
		taskType  string
		validator string
	)

	cmd := &cobra.Command{
		Use:   "create <task-id>",
		Short: "Create a task signed by your keypair",
		Long: `Create a task. You become its creator; --validator names the identity
allowed to record the verification outcome.

Arguments:
  task-id    1 to 32 bytes, unique on the ledger`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			tt, err := task.ParseTaskType(taskType)
			if err != nil {
				return err
			}
			args.TaskType = tt
			if args.Validator, err = task.ParseIdentity(validator); err != nil {
				return fmt.Errorf("--validator: %w", err)
			}
			return opts.submit(cmd.Context(), cmd.OutOrStdout(), txn.NewCreate(pos[0], args))
		},
	}

	f := cmd.Flags()
	f.Float64Var(&args.Latitude, "lat", 0, "latitude in degrees, -90 to 90")
	f.Float64Var(&args.Longitude, "lng", 0, "longitude in degrees, -180 to 180")
	f.Uint32Var(&args.AreaSize, "area", 0, "area to cover in square meters")
	f.StringVar(&taskType, "type", "surveillance", "surveillance, delivery, inspection, mapping, photography or 0-255")
	f.Uint16Var(&args.Altitude, "altitude", 0, "flight altitude in meters")
	f.BoolVar(&args.GeofencingEnabled, "geofence", false, "require geofencing")
	f.StringVarP(&args.Description, "description", "d", "", "task description, at most 256 bytes")
	f.StringVar(&validator, "validator", "", "validator identity (base58)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	_ = cmd.MarkFlagRequired("validator")
	return cmd
}

func newTaskAcceptCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <task-id>",
		Short: "Accept a created task as its operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			return opts.submit(cmd.Context(), cmd.OutOrStdout(), txn.NewAccept(pos[0]))
		},
	}
}

func newTaskCompleteCmd(opts *globalOpts) *cobra.Command {
	var logRef, logFile, logHash, signature string

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Attest the execution log of an accepted task",
		Long: `Complete a task you accepted. With --log-file the log is hashed and the
hash signed with your keypair; otherwise pass a precomputed --log-hash and
--signature.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			key, err := opts.key()
			if err != nil {
				return err
			}
			args := task.CompleteArgs{LogReference: logRef}
			switch {
			case logFile != "":
				data, err := os.ReadFile(logFile)
				if err != nil {
					return fmt.Errorf("read log: %w", err)
				}
				args.LogHash, args.Signature = task.SignLog(key, data)
			case logHash != "" && signature != "":
				if args.LogHash, err = task.ParseHash(logHash); err != nil {
					return fmt.Errorf("--log-hash: %w", err)
				}
				if args.Signature, err = task.ParseSignature(signature); err != nil {
					return fmt.Errorf("--signature: %w", err)
				}
			default:
				return errors.New("pass --log-file, or both --log-hash and --signature")
			}
			return opts.submitWith(cmd.Context(), cmd.OutOrStdout(), key, txn.NewComplete(pos[0], args))
		},
	}

	f := cmd.Flags()
	f.StringVar(&logRef, "log-ref", "", "storage reference of the uploaded log, at most 64 bytes")
	f.StringVar(&logFile, "log-file", "", "execution log to hash and sign")
	f.StringVar(&logHash, "log-hash", "", "hex SHA3-256 of the log")
	f.StringVar(&signature, "signature", "", "base58 signature over the log hash")
	_ = cmd.MarkFlagRequired("log-ref")
	return cmd
}

func newTaskVerifyCmd(opts *globalOpts) *cobra.Command {
	var reportFile, reportHash string

	cmd := &cobra.Command{
		Use:   "verify <task-id> <pass|fail>",
		Short: "Record the verification outcome as the task's validator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, pos []string) error {
			var args task.VerificationArgs
			switch strings.ToLower(pos[1]) {
			case "pass":
				args.Result = true
			case "fail":
			default:
				return fmt.Errorf("outcome must be pass or fail, got %q", pos[1])
			}
			switch {
			case reportFile != "":
				data, err := os.ReadFile(reportFile)
				if err != nil {
					return fmt.Errorf("read report: %w", err)
				}
				args.ReportHash = task.Digest(data)
			case reportHash != "":
				h, err := task.ParseHash(reportHash)
				if err != nil {
					return fmt.Errorf("--report-hash: %w", err)
				}
				args.ReportHash = h
			}
			return opts.submit(cmd.Context(), cmd.OutOrStdout(), txn.NewRecordVerification(pos[0], args))
		},
	}

	cmd.Flags().StringVar(&reportFile, "report-file", "", "verification report to hash")
	cmd.Flags().StringVar(&reportHash, "report-hash", "", "hex SHA3-256 of the report")
	return cmd
}

func newTaskShowCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			var v node.TaskView
			if err := opts.client().get(cmd.Context(), "/api/tasks/"+url.PathEscape(pos[0]), &v); err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), &v)
			return nil
		},
	}
}

func printTask(out io.Writer, v *node.TaskView) {
	r := v.Record
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	row := func(k, val string) { _, _ = fmt.Fprintf(w, "%s:\t%s\n", k, val) }

	row("task", v.ID)
	row("address", v.Address.String())
	row("status", title(r.Status.String()))
	row("creator", r.Creator.String())
	row("operator", identityOrNone(r.Operator))
	row("validator", identityOrNone(r.Validator))
	row("type", title(r.TaskType.String()))
	row("location", r.Location().String())
	row("area", fmt.Sprintf("%d m²", r.AreaSize))
	row("altitude", fmt.Sprintf("%d m", r.Altitude))
	row("geofencing", strconv.FormatBool(r.GeofencingEnabled))
	row("description", r.Description)
	if r.Status == task.StatusCompleted {
		row("log", r.LogReference)
		row("log hash", r.LogHash.String())
		row("signature", r.Signature.String())
	}
	if r.VerificationResult {
		row("verification", "passed, report "+r.VerificationReportHash.String())
	} else {
		row("verification", "not passed")
	}
	row("updated", time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339))
	_ = w.Flush()
}

func identityOrNone(id task.Identity) string {
	if id.IsUnassigned() {
		return "(none)"
	}
	return id.String()
}

func newTasksCmd(opts *globalOpts) *cobra.Command {
	var status, creator, operator, validator string
	var limit int

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for k, v := range map[string]string{
				"status":    status,
				"creator":   creator,
				"operator":  operator,
				"validator": validator,
			} {
				if v != "" {
					q.Set(k, v)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/tasks"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var tasks []node.TaskView
			if err := opts.client().get(cmd.Context(), path, &tasks); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				_, _ = fmt.Fprintln(out, "no tasks")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tLOCATION\tDESCRIPTION")
			for _, t := range tasks {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.ID,
					title(t.Record.Status.String()),
					title(t.Record.TaskType.String()),
					t.Record.Location(),
					truncate(t.Record.Description, 40),
				)
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&status, "status", "", "created, accepted or completed")
	f.StringVar(&creator, "creator", "", "creator identity")
	f.StringVar(&operator, "operator", "", "operator identity")
	f.StringVar(&validator, "validator", "", "validator identity")
	f.IntVar(&limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
