package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/quorum/internal/cmd/output"
	"github.com/agentstation/quorum/internal/targets"
	"github.com/agentstation/quorum/pkg/errors"
)

// NewShowCommand creates the show command.
func (a *App) NewShowCommand() *cobra.Command {
	var idsFile string

	cmd := &cobra.Command{
		Use:     "show <id>...",
		GroupID: "core",
		Short:   "Print committed records",
		Long: `Show prints the committed records of the given targets from the cache,
stale or not. Targets without a committed record are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(a.config.Format)
			if err != nil {
				return err
			}
			ids, err := targets.Merge(args, idsFile)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return errors.NewValidationError("ids", nil, "at least one target id is required")
			}

			engine, err := a.Engine()
			if err != nil {
				return err
			}
			records, err := engine.Records(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if missing := len(ids) - len(records); missing > 0 {
				a.logger.Warn().Int("missing", missing).Msg("targets without a committed record")
			}
			return output.Print(cmd.OutOrStdout(), output.DetectFormat(string(format)), records, output.RecordsToData(records))
		},
	}

	cmd.Flags().StringVar(&idsFile, "ids-file", "", "read whitespace separated target ids from file")

	return cmd
}
