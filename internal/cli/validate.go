package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/graphline/internal/config"
)

// ValidationResult is the payload printed after a successful check.
type ValidationResult struct {
	Path        string `json:"path"`
	ListenAddr  string `json:"listen_addr"`
	IdleTimeout string `json:"idle_timeout"`
	MetricsAddr string `json:"metrics_addr,omitempty"`
	AuditDB     string `json:"audit_db,omitempty"`
}

func (r ValidationResult) String() string {
	s := fmt.Sprintf("%s: OK\n  listen_addr:  %s\n  idle_timeout: %s", r.Path, r.ListenAddr, r.IdleTimeout)
	if r.MetricsAddr != "" {
		s += fmt.Sprintf("\n  metrics_addr: %s", r.MetricsAddr)
	}
	if r.AuditDB != "" {
		s += fmt.Sprintf("\n  audit_db:     %s", r.AuditDB)
	}
	return s
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a YAML configuration file against the schema and print
the resolved settings.

Example:
  graphline validate ./graphline.yaml
  graphline validate ./graphline.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd)

			cfg, err := config.Load(args[0])
			if err != nil {
				return p.fail(ExitFailure, "config validation failed", err.Error())
			}

			return p.ok(ValidationResult{
				Path:        args[0],
				ListenAddr:  cfg.ListenAddr,
				IdleTimeout: cfg.IdleTimeout.String(),
				MetricsAddr: cfg.MetricsAddr,
				AuditDB:     cfg.AuditDB,
			})
		},
	}
	return cmd
}
