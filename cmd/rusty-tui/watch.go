package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cli/go-gh/v2/pkg/jsonpretty"
	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/spf13/cobra"

	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/subscription"
)

func newWatchCmd(configPath *string) *cobra.Command {
	var (
		jobID    string
		withLogs bool
	)
	cmd := &cobra.Command{
		Use:   "watch --job ID",
		Short: "Print live pipeline events of a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jobID == "" {
				return fmt.Errorf("--job is required")
			}
			rt, err := setup(cmd, *configPath, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			t := term.FromEnv()
			p := &eventPrinter{
				out:    cmd.OutOrStdout(),
				pretty: t.IsTerminalOutput(),
				color:  t.IsColorEnabled(),
			}
			stateLog := subscription.WithStateListener(func(h *subscription.Handle, s subscription.State) {
				rt.log.Info().Str("job", jobID).Str("id", h.CorrelationID()).Stringer("state", s).Msg("subscription state")
			})

			sub := subscription.Subscription{Credential: rt.cred, ScopeID: jobID, Selection: subscription.SelectPipelines}
			rt.subs.Open(cmd.Context(), sub, p.handle, stateLog)
			if withLogs {
				sub.Selection = subscription.SelectLogs
				rt.subs.Open(cmd.Context(), sub, p.handle, stateLog)
			}

			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id to watch")
	cmd.Flags().BoolVar(&withLogs, "logs", false, "also stream log lines of running pipelines")
	return cmd
}

// eventPrinter writes events as JSON lines, or indented and colored when
// stdout is a terminal. Handles of different subscriptions call it
// concurrently.
type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	pretty bool
	color  bool
	err    error
}

func (p *eventPrinter) handle(_ *subscription.Handle, ev model.PipelineEvent) {
	data, err := json.Marshal(struct {
		Kind string `json:"kind"`
		model.PipelineEvent
	}{Kind: ev.Kind.String(), PipelineEvent: ev})
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	if p.pretty {
		p.err = jsonpretty.Format(p.out, bytes.NewReader(data), "  ", p.color)
		return
	}
	_, p.err = fmt.Fprintf(p.out, "%s\n", data)
}
