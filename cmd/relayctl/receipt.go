package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tipvault/relayer/src/domain"
	"github.com/tipvault/relayer/src/service"
)

var (
	receiptWait bool

	receiptCmd = &cobra.Command{
		Use:   "receipt <user-op-hash>",
		Short: "Look up the receipt of a submitted operation",
		Long: `Look up a receipt once, or with --wait poll with the configured interval and
attempt count until the operation is included.`,
		Args: cobra.ExactArgs(1),
		RunE: runReceipt,
	}
)

func init() {
	receiptCmd.Flags().BoolVar(&receiptWait, "wait", false, "Poll until included or the polling window ends")
	rootCmd.AddCommand(receiptCmd)
}

func runReceipt(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle := domain.TrackingHandle(strings.TrimSpace(args[0]))

	ctx, config, pipeline, err := loadPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if !receiptWait {
		receipt, err := pipeline.Submission.LookupReceipt(ctx, handle)
		if err != nil {
			return err
		}
		if receipt == nil {
			return printJSON(cmd, sendResult{Status: string(domain.RelayStatusPending), UserOpHash: string(handle)})
		}
		success := receipt.Success
		return printJSON(cmd, sendResult{
			Status:          string(domain.RelayStatusIncluded),
			UserOpHash:      string(handle),
			TransactionHash: receipt.TransactionHash,
			Success:         &success,
		})
	}

	poller := service.NewReceiptPoller(pipeline.Submission, service.PollerConfig{
		Interval:    config.ReceiptPollInterval,
		MaxAttempts: config.ReceiptPollAttempts,
		CallTimeout: config.CallTimeout,
	})
	settlement, err := poller.Wait(ctx, handle)
	if err != nil {
		if kind, ok := domain.ErrorKindOf(err); ok {
			_ = printJSON(cmd, sendResult{
				Status:     string(domain.RelayStatusUnknown),
				UserOpHash: string(handle),
				ErrorKind:  string(kind),
				Error:      err.Error(),
			})
		}
		return fmt.Errorf("receipt not found: %w", err)
	}
	success := settlement.Success
	return printJSON(cmd, sendResult{
		Status:          string(domain.RelayStatusIncluded),
		UserOpHash:      string(settlement.Handle),
		TransactionHash: settlement.TransactionHash,
		Success:         &success,
	})
}
