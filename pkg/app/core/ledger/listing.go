package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uhyunpark/hypermarket/pkg/app/core/safemath"
)

// addToListing offers quantity more units of addr's unlisted inventory at
// price. The new price replaces the old one for the whole listing.
func (o *op) addToListing(addr common.Address, quantity, price uint64) error {
	if quantity == 0 {
		return fmt.Errorf("%w: listing quantity must be positive", ErrInvalidQuantity)
	}
	if price == 0 {
		return fmt.Errorf("%w: listing price must be positive", ErrInvalidPrice)
	}

	current := o.listing(addr)
	gross := o.inventory(addr)

	// Unlisted = gross - listed
	unlisted, err := safemath.Sub(gross, current.Quantity)
	if err != nil || unlisted < quantity {
		return fmt.Errorf("%w: unlisted inventory %d, want to list %d", ErrInsufficientQuantity, unlisted, quantity)
	}

	newQty, err := safemath.Add(current.Quantity, quantity)
	if err != nil {
		return err
	}

	if limit := o.config().MaxListingPerAccount; limit > 0 && newQty > limit {
		return fmt.Errorf("%w: listing would be %d, per-account cap %d", ErrListingCapExceeded, newQty, limit)
	}

	if err := o.applyReserveDelta(Increase(quantity)); err != nil {
		return err
	}

	o.setListing(addr, Listing{Quantity: newQty, Price: price})
	return nil
}

// removeFromListing withdraws quantity units from addr's listing back to
// unlisted inventory. The listing price is kept.
func (o *op) removeFromListing(addr common.Address, quantity uint64) error {
	if quantity == 0 {
		return fmt.Errorf("%w: removal quantity must be positive", ErrInvalidQuantity)
	}

	current := o.listing(addr)
	if current.Quantity < quantity {
		return fmt.Errorf("%w: listed %d, want to remove %d", ErrInsufficientQuantity, current.Quantity, quantity)
	}

	if err := o.applyReserveDelta(Decrease(quantity)); err != nil {
		return err
	}

	o.setListing(addr, Listing{Quantity: current.Quantity - quantity, Price: current.Price})
	return nil
}
