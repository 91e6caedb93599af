package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current health of all monitored targets",
	Run:   runStatus,
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts for degraded and critical targets",
	Run:   runAlerts,
}

var statsWindow string

var statsCmd = &cobra.Command{
	Use:   "stats [target_id]",
	Short: "Show windowed statistics for a target",
	Args:  cobra.ExactArgs(1),
	Run:   runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsWindow, "window", "", "statistics window, e.g. 6h or 7d (default from config)")
	rootCmd.AddCommand(statusCmd, alertsCmd, statsCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	ctx := context.Background()
	app := openGateway(ctx, cfg)
	defer func() { _ = app.Stop(ctx) }()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TARGET\tSTATUS\tSUCCESS %\tAVG MS\tREQUESTS\tISSUES")
	for _, h := range app.Monitor().GetAllHealth(ctx) {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%.0f\t%d\t%s\n",
			h.TargetID, h.Status, h.SuccessRate, h.AvgResponseTimeMs, h.TotalRequests,
			strings.Join(h.Issues, "; "))
	}
	_ = w.Flush()
}

func runAlerts(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	ctx := context.Background()
	app := openGateway(ctx, cfg)
	defer func() { _ = app.Stop(ctx) }()

	alerts := app.Monitor().GetAlerts(ctx)
	if len(alerts) == 0 {
		fmt.Println("No alerts")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SEVERITY\tTARGET\tMESSAGE")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.Severity, a.TargetID, a.Message)
	}
	_ = w.Flush()
}

func runStats(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	ctx := context.Background()
	app := openGateway(ctx, cfg)
	defer func() { _ = app.Stop(ctx) }()

	writeStats(os.Stdout, app.Monitor().GetStatistics(ctx, args[0], statsWindow))
}

// writeStats prints s with error kinds in declaration order.
func writeStats(out io.Writer, s domain.ModelStatistics) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "Target:\t%s\n", s.TargetID)
	_, _ = fmt.Fprintf(w, "Window:\t%s\n", s.Window)
	_, _ = fmt.Fprintf(w, "Requests:\t%d (%d ok, %d failed, %.2f/h)\n",
		s.TotalRequests, s.SuccessfulRequests, s.FailedRequests, s.RequestsPerHour)
	_, _ = fmt.Fprintf(w, "Success rate:\t%.1f%% (%s)\n", s.SuccessRate, s.Trends.SuccessRate)
	_, _ = fmt.Fprintf(w, "Latency avg/median/p95:\t%.0f / %.0f / %.0f ms (%s)\n",
		s.AvgResponseTimeMs, s.MedianResponseTimeMs, s.P95ResponseTimeMs, s.Trends.ResponseTime)
	for _, kind := range classify.AllKinds() {
		if n := s.ErrorBreakdown[kind]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", kind, n)
		}
	}
	_ = w.Flush()
}
