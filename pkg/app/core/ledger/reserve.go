package ledger

import (
	"fmt"

	"github.com/uhyunpark/hypermarket/pkg/app/core/safemath"
)

// ReserveDelta is a signed change to CurrentReserve
type ReserveDelta struct {
	Amount   uint64
	Decrease bool
}

// Increase returns a delta adding q to the reserve
func Increase(q uint64) ReserveDelta { return ReserveDelta{Amount: q} }

// Decrease returns a delta removing q from the reserve
func Decrease(q uint64) ReserveDelta { return ReserveDelta{Amount: q, Decrease: true} }

// applyReserveDelta moves CurrentReserve by d. Decreases floor at zero;
// increases must stay within ReserveCap. Every listing quantity change goes
// through here in the same op, which keeps CurrentReserve equal to the sum of
// listed quantities.
func (o *op) applyReserveDelta(d ReserveDelta) error {
	cfg := o.config()

	var next uint64
	if d.Decrease {
		if d.Amount < cfg.CurrentReserve {
			next = cfg.CurrentReserve - d.Amount
		}
	} else {
		sum, err := safemath.Add(cfg.CurrentReserve, d.Amount)
		if err != nil {
			return fmt.Errorf("%w: reserve %d + %d: %v", ErrReserveCapExceeded, cfg.CurrentReserve, d.Amount, err)
		}
		next = sum
	}

	if next > cfg.ReserveCap {
		return fmt.Errorf("%w: reserve would be %d, cap %d", ErrReserveCapExceeded, next, cfg.ReserveCap)
	}

	cfg.CurrentReserve = next
	o.setConfig(cfg)
	return nil
}
