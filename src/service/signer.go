package service

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tipvault/relayer/erc4337"
)

// Signer produces the operation signature the account validates.
type Signer interface {
	SignOperation(op *erc4337.Operation, entryPoint common.Address, chainID *big.Int) ([]byte, error)
}

// ECDSASigner signs the operation hash as an EIP-191 personal message, the
// scheme ECDSA-owned accounts verify.
type ECDSASigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func NewECDSASigner(privateKeyHex string) (*ECDSASigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &ECDSASigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

func (s *ECDSASigner) Address() common.Address {
	return s.address
}

func (s *ECDSASigner) SignOperation(op *erc4337.Operation, entryPoint common.Address, chainID *big.Int) ([]byte, error) {
	hash, err := op.Hash(entryPoint, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to hash operation: %w", err)
	}

	signature, err := crypto.Sign(accounts.TextHash(hash.Bytes()), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign operation: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27

	return signature, nil
}
