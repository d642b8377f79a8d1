package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/sweeper/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many rows each job would still touch",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	withSweeper(cmd, cfg, func(ctx context.Context, app *control.Sweeper) error {
		st, err := app.Status(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintf(w, "STORAGE\t%s\n", st.Storage)
		_, _ = fmt.Fprintf(w, "ELIGIBLE ADS\t%d\n", st.EligibleAds)
		_, _ = fmt.Fprintf(w, "ELIGIBLE PAGES\t%d\n", st.EligiblePages)
		_ = w.Flush()

		if len(st.Checkpoints) == 0 {
			return nil
		}
		jobs := make([]string, 0, len(st.Checkpoints))
		for job := range st.Checkpoints {
			jobs = append(jobs, job)
		}
		slices.Sort(jobs)

		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "JOB\tRUN\tROWS\tUPDATED")
		for _, job := range jobs {
			p := st.Checkpoints[job]
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", job, p.RunID, p.Total, p.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	})
}
