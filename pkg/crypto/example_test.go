package crypto_test

import (
	"fmt"
	"math/big"

	"github.com/uhyunpark/hypermarket/pkg/crypto"
)

func ExampleEIP712Signer_SignOp() {
	signer, _ := crypto.FromPrivateKeyHex("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	eip := crypto.NewEIP712Signer(crypto.DefaultDomain())

	op := &crypto.LedgerOpEIP712{
		Op:     "withdrawCurrency",
		Amount: big.NewInt(100),
		Nonce:  big.NewInt(1),
		Caller: signer.Address(),
	}
	sig, _ := eip.SignOp(signer, op)

	recovered, _ := eip.RecoverOpSigner(op, sig)
	fmt.Println(len(sig), recovered == signer.Address())
	// Output: 65 true
}
