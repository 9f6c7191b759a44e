package erc4337

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
)

const methodSponsorUserOperation = "pm_sponsorUserOperation"

// Sponsor asks a paymaster to pay for an operation. Errors are *RPCError when the
// paymaster refused, *TransportError when no answer was obtained and
// *MalformedResponseError when the answer does not match the expected shape.
type Sponsor interface {
	SponsorUserOperation(ctx context.Context, op *Operation, entryPoint common.Address) (*Sponsorship, error)
}

// MalformedResponseError reports a JSON-RPC answer that carries neither a usable
// result nor an error object.
type MalformedResponseError struct {
	Method string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Method, e.Reason)
}

type SponsorClientOption func(*SponsorClient)

// WithAPIKey appends the paymaster API key as the apikey query parameter.
func WithAPIKey(key string) SponsorClientOption {
	return func(c *SponsorClient) {
		if key != "" {
			c.http.SetQueryParam("apikey", key)
		}
	}
}

// WithSponsorshipPolicy attaches a sponsorship policy id to every request.
func WithSponsorshipPolicy(policyID string) SponsorClientOption {
	return func(c *SponsorClient) {
		c.policyID = policyID
	}
}

// WithHTTPTimeout bounds every request regardless of the caller's context.
func WithHTTPTimeout(d time.Duration) SponsorClientOption {
	return func(c *SponsorClient) {
		c.http.SetTimeout(d)
	}
}

// SponsorClient is a paymaster JSON-RPC client over resty. Safe for concurrent use.
type SponsorClient struct {
	http     *resty.Client
	url      string
	policyID string
	nextID   atomic.Uint64
}

func NewSponsorClient(url string, opts ...SponsorClientOption) *SponsorClient {
	c := &SponsorClient{
		http: resty.New().
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		url: url,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// jsonrpcResponse is either Ok (Result set) or RpcError (Error set).
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type sponsorResult struct {
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData"`
	PaymasterVerificationGasLimit string          `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       string          `json:"paymasterPostOpGasLimit"`
	CallGasLimit                  string          `json:"callGasLimit,omitempty"`
	VerificationGasLimit          string          `json:"verificationGasLimit,omitempty"`
	PreVerificationGas            string          `json:"preVerificationGas,omitempty"`
}

func (c *SponsorClient) SponsorUserOperation(ctx context.Context, op *Operation, entryPoint common.Address) (*Sponsorship, error) {
	params := []any{op, entryPoint}
	if c.policyID != "" {
		params = append(params, map[string]string{"sponsorshipPolicyId": c.policyID})
	}

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  methodSponsorUserOperation,
		Params:  params,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.url)
	if err != nil {
		return nil, classifyTransport(methodSponsorUserOperation, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, &TransportError{
			Method: methodSponsorUserOperation,
			Err:    fmt.Errorf("paymaster returned status %d", resp.StatusCode()),
		}
	}

	var body jsonrpcResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		if resp.IsError() {
			return nil, &TransportError{
				Method:    methodSponsorUserOperation,
				Delivered: true,
				Err:       fmt.Errorf("paymaster returned status %d: %s", resp.StatusCode(), resp.String()),
			}
		}
		return nil, &MalformedResponseError{Method: methodSponsorUserOperation, Reason: err.Error()}
	}

	if body.Error != nil {
		return nil, body.Error
	}
	if len(body.Result) == 0 || string(body.Result) == "null" {
		return nil, &MalformedResponseError{Method: methodSponsorUserOperation, Reason: "missing result"}
	}

	var result sponsorResult
	if err := json.Unmarshal(body.Result, &result); err != nil {
		return nil, &MalformedResponseError{Method: methodSponsorUserOperation, Reason: err.Error()}
	}
	sponsorship, err := result.toSponsorship()
	if err != nil {
		return nil, &MalformedResponseError{Method: methodSponsorUserOperation, Reason: err.Error()}
	}
	return sponsorship, nil
}

func (r *sponsorResult) toSponsorship() (*Sponsorship, error) {
	if r.Paymaster == nil || *r.Paymaster == (common.Address{}) {
		return nil, errors.New("paymaster address missing")
	}
	if r.PaymasterData == nil {
		return nil, errors.New("paymasterData missing")
	}

	s := &Sponsorship{
		Paymaster:     *r.Paymaster,
		PaymasterData: *r.PaymasterData,
	}

	required := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"paymasterVerificationGasLimit", r.PaymasterVerificationGasLimit, &s.PaymasterVerificationGasLimit},
		{"paymasterPostOpGasLimit", r.PaymasterPostOpGasLimit, &s.PaymasterPostOpGasLimit},
	}
	for _, f := range required {
		if f.value == "" {
			return nil, fmt.Errorf("%s missing", f.name)
		}
		v, err := parseHexBig(f.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = v
	}

	optional := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"callGasLimit", r.CallGasLimit, &s.CallGasLimit},
		{"verificationGasLimit", r.VerificationGasLimit, &s.VerificationGasLimit},
		{"preVerificationGas", r.PreVerificationGas, &s.PreVerificationGas},
	}
	for _, f := range optional {
		if f.value == "" {
			continue
		}
		v, err := parseHexBig(f.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = v
	}

	return s, nil
}
