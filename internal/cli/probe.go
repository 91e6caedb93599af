package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vietddude/vidgate/internal/infra/rpc"
	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe [target_id]",
	Short: "List models through the resilient client and record the outcome",
	Long: `Probe calls listModels with retries and records the result under target_id
(default "probe"), then prints the target's health.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runProbe,
}

func init() {
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 2*time.Minute, "overall deadline including retries")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	if err := probe(args); err != nil {
		os.Exit(1)
	}
}

func probe(args []string) error {
	cfg, closeLog := loadConfig()
	defer closeLog()

	target := "probe"
	if len(args) == 1 {
		target = args[0]
	}

	ctx := context.Background()
	app := openGateway(ctx, cfg)
	defer func() { _ = app.Stop(ctx) }()

	callCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client := app.Client().WithContext(rpc.MonitorContext{TargetID: target, RequestID: uuid.NewString()})
	models, err := client.ListModels(callCtx)
	if err != nil {
		var ce *classify.ClassifiedError
		if errors.As(err, &ce) {
			fmt.Printf("Probe failed (%s): %s\n", ce.Kind, ce.UserMessage)
			fmt.Printf("Suggested action: %s\n", ce.SuggestedAction)
		}
		slog.Error("Probe failed", "target", target, "error", err)
	} else {
		fmt.Printf("Probe succeeded: %d models available\n", len(models))
	}

	h := app.Monitor().GetHealth(ctx, target)
	fmt.Printf("Health of %s: %s (%.1f%% success over %d requests)\n",
		h.TargetID, h.Status, h.SuccessRate, h.TotalRequests)
	return err
}
