package main

import (
	"fmt"
	"io"
	"strconv"

	units "github.com/docker/go-units"
	"github.com/ethpandaops/compressoor/pkg/machine"
	"github.com/ethpandaops/compressoor/pkg/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	statusMachine string
	statusArch    string
	statusResults bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show benchmark progress and results",
	Long: `Print a progress summary for every machine with recorded results, or,
with --results, the analysis rows for the selected machine.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusMachine, "machine", "m", "",
		"Only show this machine")
	statusCmd.Flags().StringVar(&statusArch, "arch", "",
		"Only show this architecture")
	statusCmd.Flags().BoolVar(&statusResults, "results", false,
		"Show per test case results instead of the summary")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx := cmd.Context()

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() { _ = st.Stop() }()

	filter := machine.Identity{Machine: statusMachine, Arch: statusArch}

	if statusResults {
		rows, err := st.ListAnalysis(ctx, filter)
		if err != nil {
			return err
		}

		renderAnalysis(cmd.OutOrStdout(), rows)

		return nil
	}

	ids, err := st.ListIdentities(ctx)
	if err != nil {
		return err
	}

	summaries := make([]*store.Summary, 0, len(ids))

	for _, id := range ids {
		if filter.Machine != "" && id.Machine != filter.Machine {
			continue
		}

		if filter.Arch != "" && id.Arch != filter.Arch {
			continue
		}

		summary, err := st.Summarize(ctx, id)
		if err != nil {
			return err
		}

		summaries = append(summaries, summary)
	}

	renderSummaries(cmd.OutOrStdout(), summaries)

	return nil
}

func renderSummaries(w io.Writer, summaries []*store.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Machine", "Arch", "Succeeded", "Failed", "Pending", "Total"})
	table.SetAutoFormatHeaders(false)

	for _, s := range summaries {
		table.Append([]string{
			s.Machine,
			s.Arch,
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Pending),
			strconv.Itoa(s.Total),
		})
	}

	table.Render()
}

func renderAnalysis(w io.Writer, rows []store.Analysis) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Machine", "Arch", "Test", "OK",
		"Compress", "Comp Mem", "Decompress", "Decomp Mem", "Output", "Ratio",
	})
	table.SetAutoFormatHeaders(false)

	for _, r := range rows {
		if !r.Succeeded {
			table.Append([]string{r.Machine, r.Arch, r.Label, "no", "-", "-", "-", "-", "-", "-"})

			continue
		}

		table.Append([]string{
			r.Machine,
			r.Arch,
			r.Label,
			"yes",
			strconv.FormatFloat(r.CompDuration, 'f', 2, 64) + "s",
			units.BytesSize(float64(r.CompMaxMem)),
			strconv.FormatFloat(r.DecompDuration, 'f', 2, 64) + "s",
			units.BytesSize(float64(r.DecompMaxMem)),
			units.BytesSize(float64(r.OutputSize)),
			strconv.FormatFloat(r.RatioPct, 'f', 1, 64) + "%",
		})
	}

	table.Render()
}
