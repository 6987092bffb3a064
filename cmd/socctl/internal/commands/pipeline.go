package commands

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/detection"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/models"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

// NewIngestCommand stores every line of a log file as evidence
func NewIngestCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Store the lines of a log file as raw evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := OptionsFromContext(ctx)

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var lines []string
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			res, err := a.Ingestor.Ingest(ctx, source, lines, opts.attribution())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, res, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "SOURCE\tINGESTED\tSKIPPED\n")
				fmt.Fprintf(tw, "%s\t%d\t%d\n", res.Source, res.Ingested, res.Skipped)
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Log source name")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// NewAnalyzeCommand classifies pending evidence
func NewAnalyzeCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify unprocessed evidence",
		Long: `Runs one classification batch over unprocessed evidence, or keeps
running batches until the backlog is empty with --all.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := OptionsFromContext(ctx)

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			var res *detection.BatchResult
			if all {
				res, err = a.Processor.Drain(ctx, opts.attribution())
			} else {
				res, err = a.Detection.RunBatch(ctx, opts.attribution())
			}
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts, res, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "ANALYZED\tSKIPPED\tFAILED\tREMAINING\n")
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", res.Analyzed, res.Skipped, len(res.Failures), res.Remaining)
				for _, f := range res.Failures {
					fmt.Fprintf(tw, "  evidence %d\t%s\n", f.EvidenceID, f.Error)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Drain the whole backlog")
	return cmd
}

// NewCorrelateCommand groups suspicious classifications into correlated events
func NewCorrelateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "correlate",
		Short: "Correlate suspicious alerts within the configured window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := OptionsFromContext(ctx)

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			res, err := a.Correlation.Run(ctx, opts.attribution())
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts, res, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "GROUPS\tQUALIFIED\tCREATED\tEXISTING\n")
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", res.Groups, res.Qualified, res.Created, res.Existing)
				if len(res.Events) > 0 {
					fmt.Fprintf(tw, "\nID\tATTACK\tSOURCE\tALERTS\tRISK\n")
					for _, ev := range res.Events {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.1f\n", ev.ID, ev.AttackType, ev.Source, ev.TotalAlerts, ev.RiskScore)
					}
				}
			})
		},
	}
}

// NewPromoteCommand turns a correlated event into an incident
func NewPromoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "promote EVENT_ID",
		Short: "Promote a correlated event to an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := OptionsFromContext(ctx)

			eventID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			inc, err := a.Incidents.Promote(ctx, eventID, opts.attribution())
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts, inc, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "INCIDENT\tEVENT\tATTACK\tRISK\tSTATUS\n")
				fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f\t%s\n",
					inc.IncidentID, inc.CorrelatedEventID, inc.AttackType, inc.RiskScore, inc.CurrentStatus)
			})
		},
	}
}

// NewVerifyCommand recomputes the audit hash chain
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		Long:  `Walks the audit log from the first entry and exits non-zero if any link is broken.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := OptionsFromContext(ctx)

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			report, err := a.Ledger.VerifyChain(ctx)
			if err != nil {
				return err
			}

			if err := render(cmd.OutOrStdout(), opts, report, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "OK\tENTRIES\tLAST SEQUENCE\tLAST HASH\n")
				fmt.Fprintf(tw, "%t\t%d\t%d\t%s\n", report.OK, report.Total, report.LastSequence, report.LastHash)
				if report.Failure != nil {
					fmt.Fprintf(tw, "\nbroken at sequence %d: %s\n", report.Failure.Sequence, report.Failure.Reason)
				}
			}); err != nil {
				return err
			}
			return report.Err()
		},
	}
}

// NewSummaryCommand prints the dashboard counts
func NewSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show alert and incident counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := OptionsFromContext(ctx)

			a, log, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			overview, err := storage.NewSummaryRepository(a.Store).Overview(ctx)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts, overview, func(tw *tabwriter.Writer) {
				writeOverview(tw, overview)
			})
		},
	}
}

func writeOverview(tw *tabwriter.Writer, o *models.Overview) {
	fmt.Fprintf(tw, "ALERTS\tCRITICAL\tINCIDENTS\tOPEN\n")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n\n", o.TotalAlerts, o.CriticalAlerts, o.TotalIncidents, o.OpenIncidents)

	fmt.Fprintf(tw, "SEVERITY\tALERTS\n")
	for _, sev := range []models.Severity{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow,
	} {
		fmt.Fprintf(tw, "%s\t%d\n", sev, o.AlertsBySeverity[sev])
	}

	fmt.Fprintf(tw, "\nSTATUS\tINCIDENTS\n")
	for _, st := range models.IncidentStatuses {
		fmt.Fprintf(tw, "%s\t%d\n", st, o.IncidentsByStatus[st])
	}
}
