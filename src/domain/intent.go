package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// CallIntent is the contract call a caller wants relayed. Arguments are in
// signature order; numeric values may be json.Number, string, *big.Int or a Go integer.
type CallIntent struct {
	Target    common.Address
	Signature string
	Args      []any
}

// RelayRequest is the input of one relay run.
type RelayRequest struct {
	Caller common.Address
	Intent CallIntent
	// Signature is attached as-is when present.
	Signature []byte
}

// TrackingHandle is the bundler's identifier for an accepted operation.
type TrackingHandle string

// Receipt is a non-empty receipt lookup result.
type Receipt struct {
	TransactionHash string
	Success         bool
}

// Settlement is the result of a relay run that was included on chain.
type Settlement struct {
	Handle          TrackingHandle
	TransactionHash string
	// Success is the inner execution result reported by the EntryPoint.
	Success bool
}
