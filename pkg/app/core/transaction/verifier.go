package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypermarket/pkg/crypto"
)

// ErrBadSignature is returned when the signature does not recover to the
// claimed caller
var ErrBadSignature = errors.New("signature invalid")

// Verifier authenticates signed transactions
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// Signer returns the EIP-712 signer for the verifier's domain
func (v *Verifier) Signer() *crypto.EIP712Signer {
	return v.eip712Signer
}

// Verify decodes tx and checks that its signature was made by tx.Caller.
// The returned Op's Caller is the authenticated identity.
func (v *Verifier) Verify(tx *SignedTransaction) (*Op, error) {
	op, err := tx.Decode()
	if err != nil {
		return nil, err
	}

	sigBytes, err := crypto.DecodeSignature(tx.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	signer, err := v.RecoverSigner(op, sigBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != op.Caller {
		return nil, fmt.Errorf("%w: signed by %s, claimed %s", ErrBadSignature, signer.Hex(), op.Caller.Hex())
	}
	return op, nil
}

// RecoverSigner recovers the address that signed op
func (v *Verifier) RecoverSigner(op *Op, signature []byte) (common.Address, error) {
	return v.eip712Signer.RecoverOpSigner(op.ToEIP712(), signature)
}
