package erc4337

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addressPtr(addr string) *common.Address {
	a := common.HexToAddress(addr)
	return &a
}

func quantity(v int64) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(v))
}

// sponsoredOperation returns an operation with every field set.
func sponsoredOperation() *Operation {
	return &Operation{
		Sender:                        common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Nonce:                         quantity(5),
		CallData:                      hexutil.MustDecode("0xb61d27f6"),
		CallGasLimit:                  quantity(96000),
		VerificationGasLimit:          quantity(150000),
		PreVerificationGas:            quantity(50000),
		MaxFeePerGas:                  quantity(1000000000),
		MaxPriorityFeePerGas:          quantity(1000000000),
		Paymaster:                     addressPtr("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda"),
		PaymasterVerificationGasLimit: quantity(60000),
		PaymasterPostOpGasLimit:       quantity(1),
		PaymasterData:                 hexutil.MustDecode("0x9abc"),
		Signature:                     DummySignature,
	}
}

func TestOperation_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		op       *Operation
		expected map[string]any
		absent   []string
	}{
		{
			name: "sponsored operation",
			op:   sponsoredOperation(),
			expected: map[string]any{
				"sender":                        "0x1234567890123456789012345678901234567890",
				"nonce":                         "0x0000000000000000000000000000000000000000000000000000000000000005",
				"callData":                      "0xb61d27f6",
				"callGasLimit":                  "0x17700",
				"verificationGasLimit":          "0x249f0",
				"preVerificationGas":            "0xc350",
				"maxFeePerGas":                  "0x3b9aca00",
				"maxPriorityFeePerGas":          "0x3b9aca00",
				"paymaster":                     "0xfedcbafedcbafedcbafedcbafedcbafedcbafeda",
				"paymasterVerificationGasLimit": "0xea60",
				"paymasterPostOpGasLimit":       "0x1",
				"paymasterData":                 "0x9abc",
			},
			absent: []string{"factory", "factoryData"},
		},
		{
			name: "unsponsored operation omits paymaster fields",
			op: &Operation{
				Sender:   common.HexToAddress("0x1234567890123456789012345678901234567890"),
				Nonce:    quantity(0),
				CallData: hexutil.MustDecode("0x01"),
			},
			expected: map[string]any{
				"nonce":     "0x0000000000000000000000000000000000000000000000000000000000000000",
				"signature": "0x",
			},
			absent: []string{"paymaster", "paymasterData", "paymasterVerificationGasLimit", "callGasLimit"},
		},
		{
			name: "paymaster without data emits empty bytes",
			op: &Operation{
				Sender:    common.HexToAddress("0x1234567890123456789012345678901234567890"),
				Paymaster: addressPtr("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda"),
			},
			expected: map[string]any{
				"paymasterData": "0x",
				"callData":      "0x",
			},
		},
		{
			name: "large nonce key is padded",
			op: &Operation{
				Nonce: (*hexutil.Big)(new(big.Int).SetBytes(common.Hex2Bytes("0123456789abcdef"))),
			},
			expected: map[string]any{
				"nonce": "0x0000000000000000000000000000000000000000000000000123456789abcdef",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.op)
			require.NoError(t, err)

			var result map[string]any
			require.NoError(t, json.Unmarshal(data, &result))

			for key, want := range tt.expected {
				assert.Equal(t, want, result[key], "field %s mismatch", key)
			}
			for _, key := range tt.absent {
				assert.NotContains(t, result, key)
			}
		})
	}
}

func TestOperation_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		jsonData string
		check    func(t *testing.T, op *Operation)
		errMsg   string
	}{
		{
			name: "bundler style quantities with leading zeros",
			jsonData: `{
				"sender": "0x1234567890123456789012345678901234567890",
				"nonce": "0x00",
				"callData": "0x5678",
				"callGasLimit": "0x000f4240",
				"paymaster": "0xfedcbafedcbafedcbafedcbafedcbafedcbafeda",
				"paymasterData": "0x",
				"signature": "0xdef0"
			}`,
			check: func(t *testing.T, op *Operation) {
				assert.Equal(t, int64(0), op.Nonce.ToInt().Int64())
				assert.Equal(t, int64(1000000), op.CallGasLimit.ToInt().Int64())
				assert.Equal(t, hexutil.Bytes{}, op.PaymasterData)
				assert.Nil(t, op.Factory)
				assert.Nil(t, op.MaxFeePerGas)
			},
		},
		{
			name:     "invalid nonce",
			jsonData: `{"nonce": "zz"}`,
			errMsg:   "invalid nonce",
		},
		{
			name:     "invalid callGasLimit",
			jsonData: `{"callGasLimit": "0xnope"}`,
			errMsg:   "invalid callGasLimit",
		},
		{
			name:     "invalid JSON",
			jsonData: `{"incomplete": }`,
			errMsg:   "invalid character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var op Operation
			err := json.Unmarshal([]byte(tt.jsonData), &op)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			tt.check(t, &op)
		})
	}
}

func TestOperation_RoundTrip(t *testing.T) {
	original := sponsoredOperation()
	original.Factory = addressPtr("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	original.FactoryData = hexutil.MustDecode("0x1234abcd")

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Operation
	require.NoError(t, json.Unmarshal(data, &decoded))

	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
	assert.Empty(t, decoded.Missing())
}

func TestOperation_ApplySponsorship(t *testing.T) {
	op := &Operation{
		Sender:               common.HexToAddress("0x1234567890123456789012345678901234567890"),
		CallGasLimit:         quantity(96000),
		VerificationGasLimit: quantity(150000),
		PreVerificationGas:   quantity(50000),
	}

	op.ApplySponsorship(&Sponsorship{
		Paymaster:                     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		PaymasterVerificationGasLimit: big.NewInt(60000),
		PaymasterPostOpGasLimit:       big.NewInt(1),
		PreVerificationGas:            big.NewInt(52000),
	})

	require.NotNil(t, op.Paymaster)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa"), *op.Paymaster)
	assert.Equal(t, int64(60000), op.PaymasterVerificationGasLimit.ToInt().Int64())
	assert.Equal(t, int64(1), op.PaymasterPostOpGasLimit.ToInt().Int64())
	assert.NotNil(t, op.PaymasterData)
	assert.Empty(t, op.PaymasterData)

	// overrides only where the sponsor returned a value
	assert.Equal(t, int64(96000), op.CallGasLimit.ToInt().Int64())
	assert.Equal(t, int64(150000), op.VerificationGasLimit.ToInt().Int64())
	assert.Equal(t, int64(52000), op.PreVerificationGas.ToInt().Int64())
}

func TestOperation_Missing(t *testing.T) {
	assert.Empty(t, sponsoredOperation().Missing())

	op := sponsoredOperation()
	op.Paymaster = nil
	op.PaymasterData = nil
	op.Signature = nil
	assert.Equal(t, []string{"paymaster", "paymasterData", "signature"}, op.Missing())

	assert.Len(t, (&Operation{}).Missing(), 13)
}

func TestOperation_Pack(t *testing.T) {
	op := sponsoredOperation()
	op.Factory = addressPtr("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	op.FactoryData = hexutil.MustDecode("0x1234")

	packed := op.Pack()

	assert.Equal(t, op.Sender, packed.Sender)
	assert.Equal(t, big.NewInt(5), packed.Nonce)
	assert.Equal(t, append(op.Factory.Bytes(), 0x12, 0x34), packed.InitCode)

	var limits [32]byte
	copy(limits[16-len(big.NewInt(150000).Bytes()):16], big.NewInt(150000).Bytes())
	copy(limits[32-len(big.NewInt(96000).Bytes()):], big.NewInt(96000).Bytes())
	assert.Equal(t, limits, packed.AccountGasLimits)

	require.Len(t, packed.PaymasterAndData, 20+16+16+2)
	assert.Equal(t, op.Paymaster.Bytes(), packed.PaymasterAndData[:20])
	assert.Equal(t, []byte{0x9a, 0xbc}, packed.PaymasterAndData[52:])

	bare := &Operation{Sender: op.Sender}
	assert.Empty(t, bare.Pack().InitCode)
	assert.Empty(t, bare.Pack().PaymasterAndData)
}

func TestOperation_Hash(t *testing.T) {
	chainID := big.NewInt(84532)
	op := sponsoredOperation()

	hash, err := op.Hash(EntryPointV07, chainID)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	again, err := op.Hash(EntryPointV07, chainID)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	// the signature is not part of the hash
	signed := sponsoredOperation()
	signed.Signature = hexutil.MustDecode("0xdef0")
	signedHash, err := signed.Hash(EntryPointV07, chainID)
	require.NoError(t, err)
	assert.Equal(t, hash, signedHash)

	other := sponsoredOperation()
	other.Nonce = quantity(6)
	otherHash, err := other.Hash(EntryPointV07, chainID)
	require.NoError(t, err)
	assert.NotEqual(t, hash, otherHash)

	otherChain, err := op.Hash(EntryPointV07, big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, hash, otherChain)
}
