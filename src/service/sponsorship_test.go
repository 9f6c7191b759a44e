package service

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/domain"
	"github.com/tipvault/relayer/src/testutil"
)

func TestSponsorshipClient_Sponsor(t *testing.T) {
	srv := testutil.NewRPCServer(t, map[string]testutil.RPCHandler{
		"pm_sponsorUserOperation": func(json.RawMessage) (any, *testutil.RPCError) {
			return map[string]any{
				"paymaster":                     "0x00000000000000000000000000000000000000ff",
				"paymasterData":                 "0x",
				"paymasterVerificationGasLimit": "0xea60",
				"paymasterPostOpGasLimit":       "0x9c40",
			}, nil
		},
	})
	client := NewSponsorshipClient(erc4337.NewSponsorClient(srv.URL), erc4337.EntryPointV07)

	op, err := BuildOperation(testCaller, testCall(), &Estimate{GasEstimate: 80000, Nonce: big.NewInt(5)}, DefaultGasPolicy(), nil)
	require.NoError(t, err)

	sponsorship, err := client.Sponsor(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xff"), sponsorship.Paymaster)
	assert.Nil(t, op.Paymaster, "sponsoring does not modify the operation")

	op.ApplySponsorship(sponsorship)
	assert.Empty(t, op.Missing())
}

func TestSponsorshipClient_Failures(t *testing.T) {
	tests := []struct {
		name     string
		result   any
		rpcErr   *testutil.RPCError
		wantKind domain.ErrorKind
		wantMsg  string
	}{
		{
			name:     "denied",
			rpcErr:   &testutil.RPCError{Code: -32001, Message: "rate limited"},
			wantKind: domain.ErrorKindSponsorshipDenied,
			wantMsg:  "rate limited",
		},
		{
			name:     "malformed",
			result:   map[string]any{"paymasterData": "0x"},
			wantKind: domain.ErrorKindSponsorshipUnavailable,
		},
		{
			name:     "unavailable",
			result:   testutil.HTTPStatus(http.StatusServiceUnavailable),
			wantKind: domain.ErrorKindSponsorshipUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewRPCServer(t, map[string]testutil.RPCHandler{
				"pm_sponsorUserOperation": func(json.RawMessage) (any, *testutil.RPCError) {
					return tt.result, tt.rpcErr
				},
			})
			client := NewSponsorshipClient(erc4337.NewSponsorClient(srv.URL), erc4337.EntryPointV07)

			_, err := client.Sponsor(context.Background(), sponsoredTestOperation(t))
			relayErr := requireRelayError(t, err, tt.wantKind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, relayErr.Message)
			}
		})
	}
}
