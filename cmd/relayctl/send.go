package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/tipvault/relayer/src/domain"
)

var (
	sendCaller    string
	sendTarget    string
	sendFunction  string
	sendArgs      []string
	sendSignature string

	sendCmd = &cobra.Command{
		Use:   "send",
		Short: "Relay one contract call and wait for inclusion",
		Long: `Encode, estimate, sponsor and submit a call on behalf of --caller, then poll
for its receipt. Array arguments are given as JSON, e.g. --arg '["0xab..","0xcd.."]'.`,
		RunE: runSend,
	}
)

func init() {
	sendCmd.Flags().StringVar(&sendCaller, "caller", "", "Smart account that sends the call")
	sendCmd.Flags().StringVar(&sendTarget, "target", "", "Contract to call (defaults to VAULT_ADDRESS)")
	sendCmd.Flags().StringVar(&sendFunction, "function", "", `Function name or signature, e.g. "claim(uint256)"`)
	sendCmd.Flags().StringArrayVar(&sendArgs, "arg", nil, "Function argument, repeated in order")
	sendCmd.Flags().StringVar(&sendSignature, "signature", "", "Pre-computed operation signature (hex)")
	_ = sendCmd.MarkFlagRequired("caller")
	_ = sendCmd.MarkFlagRequired("function")

	rootCmd.AddCommand(sendCmd)
}

type sendResult struct {
	Status          string `json:"status"`
	UserOpHash      string `json:"user_op_hash,omitempty"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Success         *bool  `json:"success,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
	Error           string `json:"error,omitempty"`
}

func runSend(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !common.IsHexAddress(sendCaller) {
		return fmt.Errorf("invalid --caller %q", sendCaller)
	}
	args, err := parseArgs(sendArgs)
	if err != nil {
		return err
	}
	var signature []byte
	if sendSignature != "" {
		if signature, err = hexutil.Decode(sendSignature); err != nil {
			return fmt.Errorf("invalid --signature: %w", err)
		}
	}

	ctx, config, pipeline, err := loadPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	target := config.VaultAddress
	if sendTarget != "" {
		if !common.IsHexAddress(sendTarget) {
			return fmt.Errorf("invalid --target %q", sendTarget)
		}
		target = common.HexToAddress(sendTarget)
	}

	settlement, err := pipeline.Coordinator.Relay(ctx, domain.RelayRequest{
		Caller: common.HexToAddress(sendCaller),
		Intent: domain.CallIntent{
			Target:    target,
			Signature: sendFunction,
			Args:      args,
		},
		Signature: signature,
	})
	if err == nil {
		success := settlement.Success
		return printJSON(cmd, sendResult{
			Status:          string(domain.RelayStatusIncluded),
			UserOpHash:      string(settlement.Handle),
			TransactionHash: settlement.TransactionHash,
			Success:         &success,
		})
	}

	var relayErr *domain.RelayError
	if !errors.As(err, &relayErr) {
		return err
	}
	status := domain.RelayStatusFailed
	if relayErr.Kind.Unresolved() {
		status = domain.RelayStatusUnknown
	}
	if printErr := printJSON(cmd, sendResult{
		Status:     string(status),
		UserOpHash: string(relayErr.Handle),
		ErrorKind:  string(relayErr.Kind),
		Error:      relayErr.Message,
	}); printErr != nil {
		return printErr
	}
	return relayErr
}

// parseArgs keeps scalars as strings and decodes JSON arrays with exact numbers.
func parseArgs(raw []string) ([]any, error) {
	args := make([]any, 0, len(raw))
	for i, arg := range raw {
		trimmed := strings.TrimSpace(arg)
		if !strings.HasPrefix(trimmed, "[") {
			args = append(args, trimmed)
			continue
		}
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var list []any
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("argument %d is not a JSON array: %w", i, err)
		}
		args = append(args, list)
	}
	return args, nil
}
