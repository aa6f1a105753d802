package app

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/quorum"
	"github.com/agentstation/quorum/internal/cmd/output"
	"github.com/agentstation/quorum/internal/targets"
	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/logging"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/scheduler"
)

// runFlags holds the flags of the run command.
type runFlags struct {
	idsFile        string
	unresolvedFile string
	report         string
	label          string
	concurrency    int
	maxRounds      int
	roundSleep     time.Duration
	tolerance      int
	overwrite      bool
}

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:     "run [ids...]",
		GroupID: "core",
		Short:   "Reconcile a batch of targets",
		Long: `Run fetches each target once per round until a sample wins the vote
or the round budget is spent. Committed records are printed when the batch
ends, and targets with a fresh committed record are skipped.

The command fails when more targets than tolerated stay unresolved.`,
		Example: `  quorum run 5001 5002
  quorum run --ids-file ids.txt --concurrency 8 --report batch.md
  quorum run --overwrite --tolerance 0 5001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.idsFile, "ids-file", "", "read whitespace separated target ids from file")
	cmd.Flags().StringVar(&flags.unresolvedFile, "unresolved-file", "", "write unresolved target ids to file")
	cmd.Flags().StringVar(&flags.report, "report", "", "write a markdown batch report to file")
	cmd.Flags().StringVar(&flags.label, "label", "", "batch label used in logs and reports")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "maximum targets in flight")
	cmd.Flags().IntVar(&flags.maxRounds, "max-rounds", 0, "maximum rounds per batch")
	cmd.Flags().DurationVar(&flags.roundSleep, "round-sleep", 0, "pause between rounds (e.g. 10s)")
	cmd.Flags().IntVar(&flags.tolerance, "tolerance", 0, "unresolved targets accepted before the batch fails")
	cmd.Flags().BoolVar(&flags.overwrite, "overwrite", false, "discard committed records of the targets first")

	return cmd
}

// overrides turns the flags the user set into engine options.
func (f *runFlags) overrides(cmd *cobra.Command) []quorum.Option {
	var opts []quorum.Option
	changed := cmd.Flags().Changed

	if changed("concurrency") {
		opts = append(opts, quorum.WithConcurrency(f.concurrency))
	}
	if changed("max-rounds") {
		opts = append(opts, quorum.WithMaxRounds(f.maxRounds))
	}
	if changed("round-sleep") {
		opts = append(opts, quorum.WithRoundSleep(f.roundSleep))
	}
	if changed("tolerance") {
		opts = append(opts, quorum.WithTolerance(f.tolerance))
	}
	if f.label != "" {
		opts = append(opts, quorum.WithLabel(f.label))
	}
	if f.overwrite {
		opts = append(opts, quorum.WithOverwrite(true))
	}
	return opts
}

func (a *App) runBatch(cmd *cobra.Command, args []string, flags *runFlags) error {
	format, err := output.ParseFormat(a.config.Format)
	if err != nil {
		return err
	}

	ids, err := targets.Merge(args, flags.idsFile)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.NewValidationError("ids", nil, "at least one target id is required")
	}

	engine, err := a.EngineWithOptions(flags.overrides(cmd)...)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	ctx := logging.WithLogger(cmd.Context(), a.logger)
	outcome, runErr := engine.Run(ctx, ids)
	if outcome == nil {
		return runErr
	}

	records, err := engine.Records(ctx, outcome.Done)
	if err != nil {
		return err
	}

	if flags.report != "" {
		if err := writeReport(flags.report, outcome, records, runErr); err != nil {
			return err
		}
		a.logger.Info().Str("path", flags.report).Msg("report written")
	}
	if flags.unresolvedFile != "" {
		if err := targets.Save(flags.unresolvedFile, outcome.Failed); err != nil {
			return err
		}
	}

	if err := output.Print(cmd.OutOrStdout(), output.DetectFormat(string(format)), records, output.RecordsToData(records)); err != nil {
		return err
	}
	return runErr
}

// writeReport writes the markdown report of a batch to path.
func writeReport(path string, outcome *scheduler.Outcome, records []*sample.Record, batchErr error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.FilePermissions)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if err := output.WriteReport(f, outcome, records, batchErr); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.WrapIO("close", path, err)
	}
	return nil
}
