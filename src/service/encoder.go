package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tipvault/relayer/src/domain"
)

// VaultABI lists the vault functions a caller may relay.
const VaultABI = `[
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimTo","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimWithProof","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"proof","type":"bytes32[]"}],"outputs":[]},
	{"type":"function","name":"donate","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"message","type":"string"}],"outputs":[]}
]`

// accountABI is the smart account entry the EntryPoint calls with callData.
const accountABI = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]}
]`

// EncodedCall is an intent turned into bytes.
type EncodedCall struct {
	Target common.Address
	// Data is the calldata of the target contract call.
	Data hexutil.Bytes
	// CallData wraps Data in the account's execute call and goes into the operation.
	CallData hexutil.Bytes
}

// IntentEncoder encodes intents against a fixed contract ABI. It has no state
// beyond the parsed schema and is safe for concurrent use.
type IntentEncoder struct {
	schema  abi.ABI
	account abi.ABI
}

func NewIntentEncoder(schemaJSON string) (*IntentEncoder, error) {
	schema, err := abi.JSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse intent schema: %w", err)
	}
	account, err := abi.JSON(strings.NewReader(accountABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse account abi: %w", err)
	}
	return &IntentEncoder{schema: schema, account: account}, nil
}

// Encode returns the calldata for intent. The same intent always yields the same bytes.
func (e *IntentEncoder) Encode(intent domain.CallIntent) (*EncodedCall, error) {
	if intent.Target == (common.Address{}) {
		return nil, invalidIntent(errors.New("target contract is the zero address"))
	}

	method, err := e.lookup(intent.Signature)
	if err != nil {
		return nil, invalidIntent(err)
	}
	if len(intent.Args) != len(method.Inputs) {
		return nil, invalidIntent(fmt.Errorf("%s expects %d arguments, got %d", method.Sig, len(method.Inputs), len(intent.Args)))
	}

	args := make([]interface{}, len(intent.Args))
	for i, input := range method.Inputs {
		v, err := coerceArg(input.Type, intent.Args[i])
		if err != nil {
			return nil, invalidIntent(fmt.Errorf("argument %d (%s): %w", i, input.Type.String(), err))
		}
		args[i] = v
	}

	data, err := e.schema.Pack(method.Name, args...)
	if err != nil {
		return nil, invalidIntent(err)
	}
	callData, err := e.account.Pack("execute", intent.Target, new(big.Int), data)
	if err != nil {
		return nil, invalidIntent(err)
	}

	return &EncodedCall{Target: intent.Target, Data: data, CallData: callData}, nil
}

// lookup accepts a full signature ("claim(uint256)") or a bare method name.
func (e *IntentEncoder) lookup(signature string) (*abi.Method, error) {
	sig := strings.ReplaceAll(signature, " ", "")
	if sig == "" {
		return nil, errors.New("function signature is empty")
	}
	for _, m := range e.schema.Methods {
		if m.Sig == sig {
			return &m, nil
		}
	}
	if m, ok := e.schema.Methods[sig]; ok {
		return &m, nil
	}
	return nil, fmt.Errorf("unknown function %q", signature)
}

func invalidIntent(err error) *domain.RelayError {
	return domain.NewRelayError(domain.ErrorKindInvalidIntent, err.Error(), err)
}

// coerceArg converts a decoded JSON value into the Go type abi.Pack expects for t.
func coerceArg(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return fitInteger(t, n)

	case abi.AddressTy:
		switch a := v.(type) {
		case common.Address:
			return a, nil
		case string:
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("invalid address %q", a)
			}
			return common.HexToAddress(a), nil
		}

	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(b) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}

	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}

	case abi.BytesTy:
		return toBytes(v)

	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		out := reflect.New(t.GetType()).Elem()
		reflect.Copy(out, reflect.ValueOf(b))
		return out.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]interface{})
		if !ok {
			break
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		out := reflect.MakeSlice(reflect.SliceOf(t.Elem.GetType()), len(items), len(items))
		for i, item := range items {
			elem, err := coerceArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		if t.T == abi.ArrayTy {
			arr := reflect.New(t.GetType()).Elem()
			reflect.Copy(arr, out)
			return arr.Interface(), nil
		}
		return out.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported abi type %s", t.String())
	}

	return nil, fmt.Errorf("cannot use %T as %s", v, t.String())
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, errors.New("nil integer")
		}
		return new(big.Int).Set(n), nil
	case json.Number:
		return parseInteger(n.String())
	case string:
		return parseInteger(n)
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%v is not an integer", n)
		}
		out, _ := new(big.Float).SetFloat64(n).Int(nil)
		return out, nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	}
	return nil, fmt.Errorf("cannot use %T as an integer", v)
}

// parseInteger accepts decimal or 0x-prefixed hex.
func parseInteger(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func fitInteger(t abi.Type, n *big.Int) (interface{}, error) {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s", n)
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s overflows %s", n, t.String())
		}
		if t.GetType().Kind() == reflect.Ptr {
			return n, nil
		}
		return reflect.ValueOf(n.Uint64()).Convert(t.GetType()).Interface(), nil
	}

	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return nil, fmt.Errorf("value %s overflows %s", n, t.String())
	}
	if t.GetType().Kind() == reflect.Ptr {
		return n, nil
	}
	return reflect.ValueOf(n.Int64()).Convert(t.GetType()).Interface(), nil
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case hexutil.Bytes:
		return b, nil
	case string:
		out, err := hexutil.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q: %w", b, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as bytes", v)
}
