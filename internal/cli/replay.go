package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/graphline/internal/audit"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	SessionID string // optional - print one session's transcript
}

// ReplaySession summarizes one recorded session.
type ReplaySession struct {
	SessionID  string `json:"session_id"`
	ClientID   string `json:"client_id,omitempty"`
	StartedAt  string `json:"started_at"`
	DurationMS int64  `json:"duration_ms"`
	Commands   int    `json:"commands"`
}

// ReplayListResult is the payload for the session listing.
type ReplayListResult struct {
	Sessions      []ReplaySession `json:"sessions"`
	TotalSessions int             `json:"total_sessions"`
	TotalCommands int             `json:"total_commands"`
}

func (r ReplayListResult) String() string {
	var b strings.Builder
	for _, s := range r.Sessions {
		fmt.Fprintf(&b, "%s  client=%s  started=%s  duration=%dms  commands=%d\n",
			s.SessionID, s.ClientID, s.StartedAt, s.DurationMS, s.Commands)
	}
	p := message.NewPrinter(language.English)
	p.Fprintf(&b, "%d sessions, %d commands recorded", r.TotalSessions, r.TotalCommands)
	return b.String()
}

// ReplayTranscriptResult is the payload for a single session transcript.
type ReplayTranscriptResult struct {
	SessionID string   `json:"session_id"`
	Lines     []string `json:"lines"`
}

func (r ReplayTranscriptResult) String() string {
	return strings.Join(r.Lines, "\n")
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Inspect the audit journal",
		Long: `Read a recorded audit journal and print what clients said.

Without --session, lists every recorded session. With --session, prints
that session's full command transcript.

Example:
  graphline replay --db ./audit.db
  graphline replay --db ./audit.db --session 0190a7f2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit journal (required)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "print the transcript of one session")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)

	journal, err := audit.Open(opts.Database)
	if err != nil {
		return failf(ExitCommandError, "open audit journal: %w", err)
	}
	defer journal.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.SessionID != "" {
		return replayTranscript(ctx, journal, opts.SessionID, p)
	}
	return replayListing(ctx, journal, p)
}

func replayListing(ctx context.Context, journal *audit.Store, p printer) error {
	sessions, err := journal.Sessions(ctx)
	if err != nil {
		return failf(ExitFailure, "read sessions: %w", err)
	}

	result := ReplayListResult{Sessions: []ReplaySession{}}
	for _, s := range sessions {
		transcript, err := journal.Transcript(ctx, s.SessionID)
		if err != nil {
			return failf(ExitFailure, "read transcript: %w", err)
		}
		result.Sessions = append(result.Sessions, ReplaySession{
			SessionID:  s.SessionID,
			ClientID:   s.ClientID,
			StartedAt:  s.StartedAt.Format("2006-01-02 15:04:05"),
			DurationMS: s.DurationMS,
			Commands:   len(transcript),
		})
		result.TotalCommands += len(transcript)
	}
	result.TotalSessions = len(sessions)
	return p.ok(result)
}

func replayTranscript(ctx context.Context, journal *audit.Store, sessionID string, p printer) error {
	transcript, err := journal.Transcript(ctx, sessionID)
	if err != nil {
		return failf(ExitFailure, "read transcript: %w", err)
	}
	if len(transcript) == 0 {
		return failf(ExitFailure, "no commands recorded for session %s", sessionID)
	}

	result := ReplayTranscriptResult{SessionID: sessionID}
	for _, rec := range transcript {
		result.Lines = append(result.Lines,
			fmt.Sprintf("C: %s", rec.Line),
			fmt.Sprintf("S: %s", rec.Reply))
	}
	return p.ok(result)
}
