package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/hypermarket/pkg/app/core/transaction"
	"github.com/uhyunpark/hypermarket/pkg/crypto"
)

var (
	keyHex   string
	txType   string
	account  string
	amount   uint64
	price    uint64
	nonce    uint64
	deadline uint64
	ttl      time.Duration
	nodeURL  string
	chainID  int64
)

var rootCmd = &cobra.Command{
	Use:   "sign-tx",
	Short: "Create and submit EIP-712 signed ledger transactions",
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate new keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("Address:     %s\n", key.Address().Hex())
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n", key.PrivateKeyHex())
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print a signed transaction as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		stx, err := buildTx()
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(stx, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Sign a transaction and POST it to a node",
	RunE: func(cmd *cobra.Command, args []string) error {
		stx, err := buildTx()
		if err != nil {
			return err
		}
		raw, err := stx.Serialize()
		if err != nil {
			return err
		}
		resp, err := http.Post(nodeURL+"/api/v1/tx", "application/json", bytes.NewReader(raw))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		fmt.Printf("%s %s\n", resp.Status, bytes.TrimSpace(body))
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("node rejected transaction")
		}
		return nil
	},
}

func buildTx() (*transaction.SignedTransaction, error) {
	if keyHex == "" {
		return nil, fmt.Errorf("--key is required")
	}
	key, err := crypto.FromPrivateKeyHex(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}

	op := &transaction.Op{
		Type:     transaction.TxType(txType),
		Caller:   key.Address(),
		Amount:   amount,
		Price:    price,
		Nonce:    nonce,
		Deadline: deadline,
	}
	if account != "" {
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("invalid account address %q", account)
		}
		op.Account = common.HexToAddress(account)
	}
	// Millisecond timestamps are strictly increasing for a single sender
	if op.Nonce == 0 {
		op.Nonce = uint64(time.Now().UnixMilli())
	}
	if op.Deadline == 0 && ttl > 0 {
		op.Deadline = uint64(time.Now().Add(ttl).Unix())
	}

	domain := crypto.DefaultDomain()
	domain.ChainID = big.NewInt(chainID)
	stx, err := transaction.Sign(crypto.NewEIP712Signer(domain), key, op)
	if err != nil {
		return nil, err
	}
	if err := stx.Validate(); err != nil {
		return nil, err
	}
	return stx, nil
}

func init() {
	for _, c := range []*cobra.Command{signCmd, submitCmd} {
		f := c.Flags()
		f.StringVar(&keyHex, "key", os.Getenv("SIGNER_KEY"), "hex private key (default $SIGNER_KEY)")
		f.StringVar(&txType, "type", "", "operation, e.g. addListing, buy, withdrawCurrency")
		f.StringVar(&account, "account", "", "seller for buy, recipient for depositCurrency/mintInventory")
		f.Uint64Var(&amount, "amount", 0, "quantity, amount, or new config value")
		f.Uint64Var(&price, "price", 0, "unit price for addListing")
		f.Uint64Var(&nonce, "nonce", 0, "nonce (default current unix ms)")
		f.Uint64Var(&deadline, "deadline", 0, "unix seconds after which the tx is void")
		f.DurationVar(&ttl, "ttl", 0, "set deadline to now+ttl when --deadline is not given")
		f.Int64Var(&chainID, "chain-id", 1337, "EIP-712 chain id")
		_ = c.MarkFlagRequired("type")
	}
	submitCmd.Flags().StringVar(&nodeURL, "node", "http://localhost:8080", "node API base URL")

	rootCmd.AddCommand(keygenCmd, signCmd, submitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
