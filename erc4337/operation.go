package erc4337

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"
)

// EntryPointV07 address constant
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// DummySignature is a correctly sized ECDSA signature used while the operation is
// estimated and sponsored. Sponsors simulate validation with it, so it must not be empty.
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// Operation is the ERC-4337 v0.7 user operation envelope.
//
// Fields are filled in stages. Sponsor fields stay nil until a paymaster
// sponsorship is merged with ApplySponsorship.
type Operation struct {
	Sender                        common.Address
	Nonce                         *hexutil.Big
	Factory                       *common.Address
	FactoryData                   hexutil.Bytes
	CallData                      hexutil.Bytes
	CallGasLimit                  *hexutil.Big
	VerificationGasLimit          *hexutil.Big
	PreVerificationGas            *hexutil.Big
	MaxFeePerGas                  *hexutil.Big
	MaxPriorityFeePerGas          *hexutil.Big
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *hexutil.Big
	PaymasterPostOpGasLimit       *hexutil.Big
	PaymasterData                 hexutil.Bytes
	Signature                     hexutil.Bytes
}

// Sponsorship carries the fields a paymaster adds to an operation. The account
// gas limits are optional: some sponsors re-estimate and return them.
type Sponsorship struct {
	Paymaster                     common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte

	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
}

// operationJSON is the wire form. Quantities are hex strings; unset optional fields are omitted.
type operationJSON struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         string          `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   *hexutil.Bytes  `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  string          `json:"callGasLimit,omitempty"`
	VerificationGasLimit          string          `json:"verificationGasLimit,omitempty"`
	PreVerificationGas            string          `json:"preVerificationGas,omitempty"`
	MaxFeePerGas                  string          `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas          string          `json:"maxPriorityFeePerGas,omitempty"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit string          `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       string          `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

// MarshalJSON implements custom JSON marshaling for Operation
func (op *Operation) MarshalJSON() ([]byte, error) {
	aux := operationJSON{
		Sender:                        op.Sender,
		Factory:                       op.Factory,
		CallData:                      op.CallData,
		CallGasLimit:                  encodeQuantity(op.CallGasLimit),
		VerificationGasLimit:          encodeQuantity(op.VerificationGasLimit),
		PreVerificationGas:            encodeQuantity(op.PreVerificationGas),
		MaxFeePerGas:                  encodeQuantity(op.MaxFeePerGas),
		MaxPriorityFeePerGas:          encodeQuantity(op.MaxPriorityFeePerGas),
		Paymaster:                     op.Paymaster,
		PaymasterVerificationGasLimit: encodeQuantity(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       encodeQuantity(op.PaymasterPostOpGasLimit),
		Signature:                     op.Signature,
	}
	if aux.CallData == nil {
		aux.CallData = hexutil.Bytes{}
	}
	if aux.Signature == nil {
		aux.Signature = hexutil.Bytes{}
	}

	// Nonce is always sent as a 32-byte word: the upper 24 bytes are the nonce key.
	nonce := new(big.Int)
	if op.Nonce != nil {
		nonce = op.Nonce.ToInt()
	}
	aux.Nonce = fmt.Sprintf("0x%064x", nonce)

	if op.Factory != nil {
		data := op.FactoryData
		aux.FactoryData = &data
	}
	if op.Paymaster != nil {
		data := op.PaymasterData
		if data == nil {
			data = hexutil.Bytes{}
		}
		aux.PaymasterData = &data
	}

	return json.Marshal(aux)
}

// UnmarshalJSON implements custom JSON unmarshaling for Operation
func (op *Operation) UnmarshalJSON(data []byte) error {
	var aux operationJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	quantities := []struct {
		name  string
		value string
		dst   **hexutil.Big
	}{
		{"nonce", aux.Nonce, &op.Nonce},
		{"callGasLimit", aux.CallGasLimit, &op.CallGasLimit},
		{"verificationGasLimit", aux.VerificationGasLimit, &op.VerificationGasLimit},
		{"preVerificationGas", aux.PreVerificationGas, &op.PreVerificationGas},
		{"maxFeePerGas", aux.MaxFeePerGas, &op.MaxFeePerGas},
		{"maxPriorityFeePerGas", aux.MaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
		{"paymasterVerificationGasLimit", aux.PaymasterVerificationGasLimit, &op.PaymasterVerificationGasLimit},
		{"paymasterPostOpGasLimit", aux.PaymasterPostOpGasLimit, &op.PaymasterPostOpGasLimit},
	}
	for _, q := range quantities {
		if q.value == "" {
			continue
		}
		v, err := parseHexBig(q.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", q.name, err)
		}
		*q.dst = (*hexutil.Big)(v)
	}

	op.Sender = aux.Sender
	op.Factory = aux.Factory
	op.CallData = aux.CallData
	op.Paymaster = aux.Paymaster
	op.Signature = aux.Signature
	if aux.FactoryData != nil {
		op.FactoryData = *aux.FactoryData
	}
	if aux.PaymasterData != nil {
		op.PaymasterData = *aux.PaymasterData
	}
	return nil
}

// ApplySponsorship merges a paymaster response into the operation.
func (op *Operation) ApplySponsorship(s *Sponsorship) {
	paymaster := s.Paymaster
	op.Paymaster = &paymaster
	op.PaymasterVerificationGasLimit = bigOrNil(s.PaymasterVerificationGasLimit)
	op.PaymasterPostOpGasLimit = bigOrNil(s.PaymasterPostOpGasLimit)
	op.PaymasterData = hexutil.Bytes{}
	if len(s.PaymasterData) > 0 {
		op.PaymasterData = append(hexutil.Bytes{}, s.PaymasterData...)
	}

	if s.CallGasLimit != nil {
		op.CallGasLimit = (*hexutil.Big)(new(big.Int).Set(s.CallGasLimit))
	}
	if s.VerificationGasLimit != nil {
		op.VerificationGasLimit = (*hexutil.Big)(new(big.Int).Set(s.VerificationGasLimit))
	}
	if s.PreVerificationGas != nil {
		op.PreVerificationGas = (*hexutil.Big)(new(big.Int).Set(s.PreVerificationGas))
	}
}

// Missing returns the names of required fields that are still unset. An operation
// is only eligible for submission when Missing returns an empty slice.
func (op *Operation) Missing() []string {
	checks := []fieldCheck{
		{"sender", op.Sender == (common.Address{})},
		{"nonce", op.Nonce == nil},
		{"callData", len(op.CallData) == 0},
		{"callGasLimit", op.CallGasLimit == nil},
		{"verificationGasLimit", op.VerificationGasLimit == nil},
		{"preVerificationGas", op.PreVerificationGas == nil},
		{"maxFeePerGas", op.MaxFeePerGas == nil},
		{"maxPriorityFeePerGas", op.MaxPriorityFeePerGas == nil},
		{"paymaster", op.Paymaster == nil},
		{"paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit == nil},
		{"paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit == nil},
		{"paymasterData", op.PaymasterData == nil},
		{"signature", len(op.Signature) == 0},
	}
	return lo.FilterMap(checks, func(c fieldCheck, _ int) (string, bool) {
		return c.name, c.unset
	})
}

type fieldCheck struct {
	name  string
	unset bool
}

// PackedOperation is the on-chain PackedUserOperation layout used for hashing.
type PackedOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// Pack packs the operation according to the EntryPoint v0.7 layout
func (op *Operation) Pack() *PackedOperation {
	packed := &PackedOperation{
		Sender:             op.Sender,
		Nonce:              toBig(op.Nonce),
		CallData:           op.CallData,
		PreVerificationGas: toBig(op.PreVerificationGas),
		Signature:          op.Signature,
		InitCode:           []byte{},
		PaymasterAndData:   []byte{},
	}

	// initCode = factory + factoryData, only when both are present
	if op.Factory != nil && len(op.FactoryData) > 0 {
		packed.InitCode = append(append([]byte{}, op.Factory.Bytes()...), op.FactoryData...)
	}

	// accountGasLimits = verificationGasLimit (16 bytes) + callGasLimit (16 bytes)
	copy(packed.AccountGasLimits[:16], uint128Bytes(op.VerificationGasLimit))
	copy(packed.AccountGasLimits[16:], uint128Bytes(op.CallGasLimit))

	// gasFees = maxPriorityFeePerGas (16 bytes) + maxFeePerGas (16 bytes)
	copy(packed.GasFees[:16], uint128Bytes(op.MaxPriorityFeePerGas))
	copy(packed.GasFees[16:], uint128Bytes(op.MaxFeePerGas))

	// paymasterAndData = paymaster + verification limit + postOp limit + data
	if op.Paymaster != nil {
		pad := make([]byte, 0, 52+len(op.PaymasterData))
		pad = append(pad, op.Paymaster.Bytes()...)
		pad = append(pad, uint128Bytes(op.PaymasterVerificationGasLimit)...)
		pad = append(pad, uint128Bytes(op.PaymasterPostOpGasLimit)...)
		pad = append(pad, op.PaymasterData...)
		packed.PaymasterAndData = pad
	}

	return packed
}

// Hash computes the v0.7 user operation hash that the account validates:
// keccak256(abi.encode(keccak256(packedFields), entryPoint, chainId)).
func (op *Operation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed := op.Pack()

	addressType, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	bytes32Type, _ := abi.NewType("bytes32", "", nil)

	opArgs := abi.Arguments{
		{Type: addressType}, // sender
		{Type: uint256Type}, // nonce
		{Type: bytes32Type}, // hashedInitCode
		{Type: bytes32Type}, // hashedCallData
		{Type: bytes32Type}, // accountGasLimits
		{Type: uint256Type}, // preVerificationGas
		{Type: bytes32Type}, // gasFees
		{Type: bytes32Type}, // hashedPaymasterAndData
	}

	encoded, err := opArgs.Pack(
		packed.Sender,
		packed.Nonce,
		crypto.Keccak256Hash(packed.InitCode),
		crypto.Keccak256Hash(packed.CallData),
		packed.AccountGasLimits,
		packed.PreVerificationGas,
		packed.GasFees,
		crypto.Keccak256Hash(packed.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode operation: %w", err)
	}

	finalArgs := abi.Arguments{
		{Type: bytes32Type}, // operation hash
		{Type: addressType}, // entry point
		{Type: uint256Type}, // chain id
	}
	if chainID == nil {
		chainID = new(big.Int)
	}
	final, err := finalArgs.Pack(crypto.Keccak256Hash(encoded), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode final hash: %w", err)
	}

	return crypto.Keccak256Hash(final), nil
}

// parseHexBig parses a hex quantity. Unlike hexutil.DecodeBig it accepts leading
// zeros ("0x00"), which several bundlers emit.
func parseHexBig(hexStr string) (*big.Int, error) {
	if len(hexStr) >= 2 && (hexStr[:2] == "0x" || hexStr[:2] == "0X") {
		hexStr = hexStr[2:]
	}
	if hexStr == "" {
		return big.NewInt(0), nil
	}
	result, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex string: %s", hexStr)
	}
	return result, nil
}

func encodeQuantity(v *hexutil.Big) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("0x%x", v.ToInt())
}

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}

func bigOrNil(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v))
}

// uint128Bytes left-pads v into 16 bytes. Values wider than 128 bits are truncated
// to their low 16 bytes; callers bound gas values well below that.
func uint128Bytes(v *hexutil.Big) []byte {
	out := make([]byte, 16)
	if v == nil {
		return out
	}
	b := v.ToInt().Bytes()
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(out[16-len(b):], b)
	return out
}
