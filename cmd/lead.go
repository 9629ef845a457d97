package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meunomeok/leadtrack/internal/dispatch"
	"github.com/meunomeok/leadtrack/internal/tracker"
	"github.com/meunomeok/leadtrack/internal/validation"
)

var (
	leadName  string
	leadEmail string
	leadPhone string
	leadURL   string
	leadPath  string
)

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Capture one lead end-to-end",
	Long:  "Validates the phone for WhatsApp reachability, then submits the lead through the full pipeline: snapshot persistence and fan-out to CRM, pixel, and backend.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		page := pageFromFlags(leadURL, leadPath)
		env.tracker.Init(ctx, page)

		t, machine := newLeadCapture(env, page, cfg.Phone.NationalDigits, retention(cfg.Retention.SnapshotDays))
		machine.Input(ctx, leadPhone)
		if err := awaitVerdict(machine, 30*time.Second); err != nil {
			return err
		}

		payload, err := t.SubmitLead(ctx, page, tracker.LeadInput{
			Name:  leadName,
			Email: leadEmail,
			Phone: leadPhone,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(payload.Flatten(), "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode payload")
		}
		fmt.Println(string(out))
		return nil
	},
}

// newLeadCapture wires the validation machine into the tracker both ways:
// the tracker gates submission on the machine, and the machine's rejections
// flow back out as LeadFormError diagnostics on the same dispatch path the
// lead itself uses.
func newLeadCapture(env *env, page dispatch.Page, requiredDigits int, snapshotTTL time.Duration) (*tracker.Tracker, *validation.Machine) {
	var t *tracker.Tracker
	machine := validation.NewMachine(env.checker, validation.Options{
		RequiredDigits: requiredDigits,
		OnRejected: func(raw json.RawMessage) {
			t.RejectionReporter(page)(raw)
		},
	})
	t = tracker.New(tracker.Options{
		Store:       env.store,
		Resolver:    env.resolver,
		Dispatcher:  env.dispatcher,
		Machine:     machine,
		SnapshotTTL: snapshotTTL,
	})
	return t, machine
}

// awaitVerdict polls the machine until the reachability check settles.
func awaitVerdict(m *validation.Machine, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		switch m.State() {
		case validation.StateConfirmed:
			return nil
		case validation.StateRejected, validation.StateIncomplete, validation.StateIdle:
			if msg := m.StatusMessage(); msg != "" {
				return eris.New(msg)
			}
			return eris.New("phone number was not confirmed")
		}
		if time.Now().After(deadline) {
			return eris.New("reachability check timed out")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func init() {
	leadCmd.Flags().StringVar(&leadName, "name", "", "lead full name")
	leadCmd.Flags().StringVar(&leadEmail, "email", "", "lead email address")
	leadCmd.Flags().StringVar(&leadPhone, "phone", "", "lead phone with area code")
	leadCmd.Flags().StringVar(&leadURL, "url", "", "page URL the lead came from")
	leadCmd.Flags().StringVar(&leadPath, "path", "", "page path (default from --url)")
	leadCmd.MarkFlagRequired("name")
	leadCmd.MarkFlagRequired("email")
	leadCmd.MarkFlagRequired("phone")
	rootCmd.AddCommand(leadCmd)
}
