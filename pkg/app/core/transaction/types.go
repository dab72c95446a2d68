package transaction

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hypermarket/pkg/crypto"
)

// TxType names a ledger operation
type TxType string

const (
	// Owner-only
	TxSetUnitPrice            TxType = "setUnitPrice"
	TxSetCommissionRate       TxType = "setCommissionRate"
	TxSetReserveCap           TxType = "setReserveCap"
	TxSetMaxListingPerAccount TxType = "setMaxListingPerAccount"
	TxDepositCurrency         TxType = "depositCurrency"
	TxMintInventory           TxType = "mintInventory"

	// Any account
	TxAddListing       TxType = "addListing"
	TxRemoveListing    TxType = "removeListing"
	TxBuy              TxType = "buy"
	TxWithdrawCurrency TxType = "withdrawCurrency"
)

// IsAdmin returns true for operations only the ledger owner may run
func (t TxType) IsAdmin() bool {
	switch t {
	case TxSetUnitPrice, TxSetCommissionRate, TxSetReserveCap, TxSetMaxListingPerAccount,
		TxDepositCurrency, TxMintInventory:
		return true
	}
	return false
}

// needsAccount returns true if the operation targets a second account
func (t TxType) needsAccount() bool {
	return t == TxBuy || t == TxDepositCurrency || t == TxMintInventory
}

func (t TxType) known() bool {
	switch t {
	case TxAddListing, TxRemoveListing, TxBuy, TxWithdrawCurrency:
		return true
	}
	return t.IsAdmin()
}

// SignedTransaction is the JSON envelope clients submit. Numeric fields are
// decimal strings so wallets can sign them as uint256.
type SignedTransaction struct {
	Type      TxType `json:"type"`
	Caller    string `json:"caller"`            // Signer address (0x...)
	Account   string `json:"account,omitempty"` // Seller for buy, recipient for deposit/mint
	Amount    string `json:"amount"`            // Quantity, amount, or new config value
	Price     string `json:"price,omitempty"`   // addListing only
	Nonce     string `json:"nonce"`
	Deadline  string `json:"deadline,omitempty"` // Unix seconds, 0 or empty = no expiry
	Signature string `json:"signature"`          // Hex-encoded signature (0x...)
}

// Op is a decoded transaction with native field types
type Op struct {
	Type     TxType
	Caller   common.Address
	Account  common.Address
	Amount   uint64
	Price    uint64
	Nonce    uint64
	Deadline uint64
}

// parseAmount parses a decimal string that must fit in uint64.
// Empty means zero.
func parseAmount(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s %s exceeds uint64", field, s)
	}
	return v.Uint64(), nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// Validate performs structural validation on the envelope
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}
	if !tx.Type.known() {
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}
	if tx.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	if tx.Caller == "" {
		return fmt.Errorf("missing caller")
	}
	if tx.Nonce == "" {
		return fmt.Errorf("missing nonce")
	}
	if tx.Type.needsAccount() && tx.Account == "" {
		return fmt.Errorf("%s requires account", tx.Type)
	}
	if tx.Type == TxAddListing && tx.Price == "" {
		return fmt.Errorf("addListing requires price")
	}
	return nil
}

// Decode validates the envelope and converts it to an Op
func (tx *SignedTransaction) Decode() (*Op, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	caller, err := parseAddress("caller", tx.Caller)
	if err != nil {
		return nil, err
	}
	op := &Op{Type: tx.Type, Caller: caller}

	if tx.Account != "" {
		if op.Account, err = parseAddress("account", tx.Account); err != nil {
			return nil, err
		}
	}
	if op.Amount, err = parseAmount("amount", tx.Amount); err != nil {
		return nil, err
	}
	if op.Price, err = parseAmount("price", tx.Price); err != nil {
		return nil, err
	}
	if op.Nonce, err = parseAmount("nonce", tx.Nonce); err != nil {
		return nil, err
	}
	if op.Deadline, err = parseAmount("deadline", tx.Deadline); err != nil {
		return nil, err
	}
	return op, nil
}

// ToEIP712 returns the typed data the caller signs for this op
func (op *Op) ToEIP712() *crypto.LedgerOpEIP712 {
	return &crypto.LedgerOpEIP712{
		Op:       string(op.Type),
		Account:  op.Account,
		Amount:   new(uint256.Int).SetUint64(op.Amount).ToBig(),
		Price:    new(uint256.Int).SetUint64(op.Price).ToBig(),
		Nonce:    new(uint256.Int).SetUint64(op.Nonce).ToBig(),
		Deadline: new(uint256.Int).SetUint64(op.Deadline).ToBig(),
		Caller:   op.Caller,
	}
}

// Sign builds a signed envelope for op. op.Caller must match key.
func Sign(eip *crypto.EIP712Signer, key *crypto.Signer, op *Op) (*SignedTransaction, error) {
	if op.Caller != key.Address() {
		return nil, fmt.Errorf("caller %s does not match signing key %s", op.Caller.Hex(), key.Address().Hex())
	}
	sig, err := eip.SignOp(key, op.ToEIP712())
	if err != nil {
		return nil, err
	}

	tx := &SignedTransaction{
		Type:      op.Type,
		Caller:    op.Caller.Hex(),
		Amount:    fmt.Sprintf("%d", op.Amount),
		Nonce:     fmt.Sprintf("%d", op.Nonce),
		Signature: crypto.EncodeSignature(sig),
	}
	if op.Account != (common.Address{}) {
		tx.Account = op.Account.Hex()
	}
	if op.Price != 0 || op.Type == TxAddListing {
		tx.Price = fmt.Sprintf("%d", op.Price)
	}
	if op.Deadline != 0 {
		tx.Deadline = fmt.Sprintf("%d", op.Deadline)
	}
	return tx, nil
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// ParseTransaction parses and structurally validates a JSON transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return &tx, nil
}

// Example:
//   {
//     "type": "buy",
//     "caller": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//     "account": "0x1111111111111111111111111111111111111111",
//     "amount": "5",
//     "nonce": "42",
//     "deadline": "1767225600",
//     "signature": "0x1234567890abcdef..."
//   }
