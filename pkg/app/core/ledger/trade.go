package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/uhyunpark/hypermarket/pkg/app/core/safemath"
)

// quote holds the amounts a buy settles, computed before any write
type quote struct {
	price       uint64
	productCost uint64
	commission  uint64
	totalCost   uint64
}

// quoteBuy runs every buy pre-condition and prices the trade.
// Commission is floor(productCost * rate / 100); fractional units are not collected.
func (o *op) quoteBuy(buyer, seller common.Address, quantity uint64) (quote, error) {
	if buyer == seller {
		return quote{}, fmt.Errorf("%w: buyer and seller are both %s", ErrTransactionAborted, buyer.Hex())
	}
	if quantity == 0 {
		return quote{}, fmt.Errorf("%w: buy quantity must be positive", ErrInvalidQuantity)
	}

	listing := o.listing(seller)
	if listing.Quantity < quantity {
		return quote{}, fmt.Errorf("%w: seller lists %d, want %d", ErrInsufficientQuantity, listing.Quantity, quantity)
	}
	// Independent check against gross holdings
	if inv := o.inventory(seller); inv < quantity {
		return quote{}, fmt.Errorf("%w: seller holds %d, want %d", ErrInsufficientQuantity, inv, quantity)
	}

	productCost, err := safemath.Mul(quantity, listing.Price)
	if err != nil {
		return quote{}, fmt.Errorf("product cost: %w", err)
	}
	commission, err := safemath.MulDivFloor(productCost, o.config().CommissionRate, 100)
	if err != nil {
		return quote{}, fmt.Errorf("commission: %w", err)
	}
	totalCost, err := safemath.Add(productCost, commission)
	if err != nil {
		return quote{}, fmt.Errorf("total cost: %w", err)
	}

	if bal := o.currency(buyer); bal < totalCost {
		return quote{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, bal, totalCost)
	}

	return quote{
		price:       listing.Price,
		productCost: productCost,
		commission:  commission,
		totalCost:   totalCost,
	}, nil
}

// buy settles quantity units from seller's listing to buyer. The six writes
// (seller inventory, seller listing + reserve, buyer inventory, buyer
// currency, seller currency, owner currency) all land in the op's change set,
// so a failure on any of them discards the others.
func (o *op) buy(buyer, seller common.Address, quantity uint64, timestamp int64) (*Trade, error) {
	q, err := o.quoteBuy(buyer, seller, quantity)
	if err != nil {
		return nil, err
	}

	// Seller: listing and reserve shrink together
	if err := o.removeFromListing(seller, quantity); err != nil {
		return nil, err
	}
	sellerInv, err := safemath.Sub(o.inventory(seller), quantity)
	if err != nil {
		return nil, err
	}
	o.setInventory(seller, sellerInv)

	// Buyer
	buyerInv, err := safemath.Add(o.inventory(buyer), quantity)
	if err != nil {
		return nil, fmt.Errorf("buyer inventory: %w", err)
	}
	o.setInventory(buyer, buyerInv)

	buyerCur, err := safemath.Sub(o.currency(buyer), q.totalCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	o.setCurrency(buyer, buyerCur)

	// Proceeds are read after the buyer debit since the owner may be a party
	sellerCur, err := safemath.Add(o.currency(seller), q.productCost)
	if err != nil {
		return nil, fmt.Errorf("seller proceeds: %w", err)
	}
	o.setCurrency(seller, sellerCur)

	owner := o.config().Owner
	ownerCur, err := safemath.Add(o.currency(owner), q.commission)
	if err != nil {
		return nil, fmt.Errorf("commission credit: %w", err)
	}
	o.setCurrency(owner, ownerCur)

	trade := &Trade{
		ID:          uuid.NewString(),
		Buyer:       buyer,
		Seller:      seller,
		Quantity:    quantity,
		Price:       q.price,
		ProductCost: q.productCost,
		Commission:  q.commission,
		TotalCost:   q.totalCost,
		Timestamp:   timestamp,
	}
	o.cs.Trade = trade
	return trade, nil
}
