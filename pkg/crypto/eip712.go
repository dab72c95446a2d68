package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/deployments
type EIP712Domain struct {
	Name              string         // Protocol name (e.g., "HyperMarket")
	Version           string         // Protocol version (e.g., "1")
	ChainID           *big.Int       // Chain ID (1337 for local)
	VerifyingContract common.Address // Zero for off-chain
}

// DefaultDomain returns the default EIP-712 domain
func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "HyperMarket",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

// LedgerOpEIP712 is the typed data every caller signs. One struct covers
// every operation; fields an operation does not use are zero.
type LedgerOpEIP712 struct {
	Op       string         // Operation name (e.g., "buy", "addListing")
	Account  common.Address // Seller for buy, recipient for deposit/mint
	Amount   *big.Int       // Quantity, amount, or new config value
	Price    *big.Int       // Unit price for addListing
	Nonce    *big.Int       // Replay protection, strictly increasing per caller
	Deadline *big.Int       // Expiration timestamp (Unix seconds), 0 = no expiry
	Caller   common.Address // Claimed signer
}

const ledgerOpType = "LedgerOp"

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var ledgerOpFields = []apitypes.Type{
	{Name: "op", Type: "string"},
	{Name: "account", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "price", Type: "uint256"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
	{Name: "caller", Type: "address"},
}

// EIP712Signer hashes, signs and verifies ledger operations for one domain
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// Domain returns the signer's domain
func (e *EIP712Signer) Domain() EIP712Domain {
	return e.domain
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (e *EIP712Signer) typedData(op *LedgerOpEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			ledgerOpType:   ledgerOpFields,
		},
		PrimaryType: ledgerOpType,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"op":       op.Op,
			"account":  op.Account.Hex(),
			"amount":   bigString(op.Amount),
			"price":    bigString(op.Price),
			"nonce":    bigString(op.Nonce),
			"deadline": bigString(op.Deadline),
			"caller":   op.Caller.Hex(),
		},
	}
}

// HashOp returns the EIP-712 digest of op
func (e *EIP712Signer) HashOp(op *LedgerOpEIP712) ([]byte, error) {
	typedData := e.typedData(op)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// SignOp signs op with signer
func (e *EIP712Signer) SignOp(signer *Signer, op *LedgerOpEIP712) ([]byte, error) {
	hash, err := e.HashOp(op)
	if err != nil {
		return nil, fmt.Errorf("failed to hash op: %w", err)
	}

	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign op: %w", err)
	}
	return signature, nil
}

// RecoverOpSigner recovers the address that signed op
func (e *EIP712Signer) RecoverOpSigner(op *LedgerOpEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashOp(op)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash op: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// VerifyOpSignature returns true if signature was made by op.Caller
func (e *EIP712Signer) VerifyOpSignature(op *LedgerOpEIP712, signature []byte) (bool, error) {
	recovered, err := e.RecoverOpSigner(op, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == op.Caller, nil
}

// OpToJSON renders op in the eth_signTypedData_v4 format wallets expect
func (e *EIP712Signer) OpToJSON(op *LedgerOpEIP712) (string, error) {
	typedData := e.typedData(op)
	// TypedData marshals chainId as hex; wallets accept either form
	jsonBytes, err := json.MarshalIndent(typedData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
