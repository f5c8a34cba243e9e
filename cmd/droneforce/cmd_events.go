package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// eventView is a bus.Message with the event body left raw; the concrete
// event type depends on Kind.
type eventView struct {
	Seq       uint64          `json:"seq"`
	TxID      string          `json:"tx_id"`
	TaskID    string          `json:"task_id"`
	Kind      string          `json:"kind"`
	Event     json.RawMessage `json:"event"`
	Timestamp int64           `json:"timestamp"`
}

func newEventsCmd(opts *globalOpts) *cobra.Command {
	var taskID, kind string
	var after uint64
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List committed ledger events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if kind != "" {
				q.Set("kind", kind)
			}
			if after > 0 {
				q.Set("after", strconv.FormatUint(after, 10))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/events"
			if taskID != "" {
				path = "/api/tasks/" + url.PathEscape(taskID) + "/events"
			}
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var events []eventView
			if err := opts.client().get(cmd.Context(), path, &events); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			if len(events) == 0 {
				_, _ = fmt.Fprintln(out, "no events")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "SEQ\tTIME\tTASK\tKIND\tEVENT")
			for _, e := range events {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					e.Seq,
					time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
					e.TaskID,
					e.Kind,
					e.Event,
				)
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&taskID, "task", "", "only events of this task")
	f.StringVar(&kind, "kind", "", "TaskCreated, TaskAccepted, TaskCompleted or TaskVerified")
	f.Uint64Var(&after, "after", 0, "only events after this sequence number")
	f.IntVar(&limit, "limit", 0, "maximum number of events (server default 100)")
	f.BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
