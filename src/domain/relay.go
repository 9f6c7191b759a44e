package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type RelayStatus string

const (
	RelayStatusPending  RelayStatus = "pending"
	RelayStatusIncluded RelayStatus = "included"
	RelayStatusFailed   RelayStatus = "failed"
	// RelayStatusUnknown is a run whose operation may still land on chain.
	RelayStatusUnknown RelayStatus = "unknown"
)

// Relay is one relay run as stored in the relays table.
type Relay struct {
	ID              uuid.UUID       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ChainID         int64           `gorm:"not null" json:"chain_id"`
	CallerAddress   string          `gorm:"type:varchar(42);not null" json:"caller_address"`
	TargetAddress   string          `gorm:"type:varchar(42);not null" json:"target_address"`
	Signature       string          `gorm:"type:text;not null" json:"function_signature"`
	Args            json.RawMessage `gorm:"type:jsonb;not null" json:"args"`
	Status          RelayStatus     `gorm:"type:varchar(16);not null;index" json:"status"`
	Handle          *string         `gorm:"type:text" json:"user_op_hash,omitempty"`
	TransactionHash *string         `gorm:"type:text" json:"transaction_hash,omitempty"`
	Success         *bool           `json:"success,omitempty"`
	ErrorKind       *string         `gorm:"type:varchar(32)" json:"error_kind,omitempty"`
	ErrorMessage    *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	// CheckedAt is the last out-of-band receipt lookup of an unknown run.
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

func (Relay) TableName() string {
	return "relays"
}

// Settle records an included settlement.
func (r *Relay) Settle(s *Settlement) {
	handle := string(s.Handle)
	txHash := s.TransactionHash
	success := s.Success
	r.Status = RelayStatusIncluded
	r.Handle = &handle
	r.TransactionHash = &txHash
	r.Success = &success
	r.ErrorKind = nil
	r.ErrorMessage = nil
}

// Fail records a relay failure. Unresolved kinds that carry a tracking handle
// leave the run in the unknown state; without a handle nothing reached the bundler.
func (r *Relay) Fail(err *RelayError) {
	kind := string(err.Kind)
	msg := err.Error()
	if err.Message != "" {
		msg = err.Message
	}
	r.Status = RelayStatusFailed
	if err.Kind.Unresolved() && err.Handle != "" {
		r.Status = RelayStatusUnknown
	}
	if err.Handle != "" {
		handle := string(err.Handle)
		r.Handle = &handle
	}
	r.ErrorKind = &kind
	r.ErrorMessage = &msg
}

var ErrRelayNotFound = errors.New("relay not found")
