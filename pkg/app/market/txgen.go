package market

import (
	"math/rand"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypermarket/pkg/app/core/transaction"
	"github.com/uhyunpark/hypermarket/pkg/crypto"
)

// TxGenerator creates signed ledger transactions for simulated traders
type TxGenerator struct {
	owner   *crypto.Signer
	traders []*crypto.Signer
	rng     *rand.Rand
	nonces  map[common.Address]uint64
	eip712  *crypto.EIP712Signer
}

// NewTxGenerator creates numAccounts fresh trader keys. ownerNonce is the
// owner's last used nonce so generated admin txs are not stale.
func NewTxGenerator(owner *crypto.Signer, ownerNonce uint64, numAccounts int, domain crypto.EIP712Domain, seed int64) (*TxGenerator, error) {
	traders := make([]*crypto.Signer, numAccounts)
	for i := range traders {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		traders[i] = key
	}
	return &TxGenerator{
		owner:   owner,
		traders: traders,
		rng:     rand.New(rand.NewSource(seed)),
		nonces:  map[common.Address]uint64{owner.Address(): ownerNonce},
		eip712:  crypto.NewEIP712Signer(domain),
	}, nil
}

// Traders returns the simulated trader keys
func (g *TxGenerator) Traders() []*crypto.Signer {
	return g.traders
}

// Bootstrap returns owner txs that fund every trader with currency and
// inventory
func (g *TxGenerator) Bootstrap(currency, inventory uint64) [][]byte {
	out := make([][]byte, 0, 2*len(g.traders))
	for _, tr := range g.traders {
		out = append(out,
			g.sign(g.owner, transaction.Op{Type: transaction.TxDepositCurrency, Account: tr.Address(), Amount: currency}),
			g.sign(g.owner, transaction.Op{Type: transaction.TxMintInventory, Account: tr.Address(), Amount: inventory}),
		)
	}
	return out
}

// GenerateBatch creates n random trader transactions
func (g *TxGenerator) GenerateBatch(n int) [][]byte {
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.next())
	}
	return out
}

func (g *TxGenerator) next() []byte {
	trader := g.traders[g.rng.Intn(len(g.traders))]

	// 45% list, 40% buy, 10% remove, 5% withdraw
	r := g.rng.Intn(100)
	switch {
	case r < 45:
		return g.sign(trader, transaction.Op{
			Type:   transaction.TxAddListing,
			Amount: uint64(g.rng.Intn(10) + 1),
			Price:  uint64(g.rng.Intn(20) + 1),
		})
	case r < 85 && len(g.traders) > 1:
		seller := g.traders[g.rng.Intn(len(g.traders))]
		for seller == trader {
			seller = g.traders[g.rng.Intn(len(g.traders))]
		}
		return g.sign(trader, transaction.Op{
			Type:    transaction.TxBuy,
			Account: seller.Address(),
			Amount:  uint64(g.rng.Intn(5) + 1),
		})
	case r < 95:
		return g.sign(trader, transaction.Op{
			Type:   transaction.TxRemoveListing,
			Amount: uint64(g.rng.Intn(5) + 1),
		})
	default:
		return g.sign(trader, transaction.Op{
			Type:   transaction.TxWithdrawCurrency,
			Amount: uint64(g.rng.Intn(100) + 1),
		})
	}
}

// sign uses key's next nonce. Signing only fails on a caller/key mismatch,
// which cannot happen here.
func (g *TxGenerator) sign(key *crypto.Signer, op transaction.Op) []byte {
	addr := key.Address()
	g.nonces[addr]++
	op.Caller = addr
	op.Nonce = g.nonces[addr]

	stx, err := transaction.Sign(g.eip712, key, &op)
	if err != nil {
		panic(err)
	}
	raw, err := stx.Serialize()
	if err != nil {
		panic(err)
	}
	return raw
}
