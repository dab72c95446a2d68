package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uhyunpark/hypermarket/pkg/app/core/safemath"
)

func requireOwner(cfg GlobalConfig, caller common.Address) error {
	if caller != cfg.Owner {
		return fmt.Errorf("%w: %s", ErrOwnerOnly, caller.Hex())
	}
	return nil
}

// adminSet runs an owner-gated config update
func (e *Engine) adminSet(name string, caller common.Address, update func(cfg *GlobalConfig) error) error {
	_, err := e.execute(name, func(o *op) error {
		cfg := o.config()
		if err := requireOwner(cfg, caller); err != nil {
			return err
		}
		if err := update(&cfg); err != nil {
			return err
		}
		o.setConfig(cfg)
		return nil
	})
	if err == nil {
		e.log.Infow("config_updated", "op", name)
	}
	return err
}

// SetUnitPrice sets the reference unit price (> 0)
func (e *Engine) SetUnitPrice(caller common.Address, price uint64) error {
	return e.adminSet("set_unit_price", caller, func(cfg *GlobalConfig) error {
		if price == 0 {
			return fmt.Errorf("%w: unit price must be positive", ErrInvalidPrice)
		}
		cfg.UnitPrice = price
		return nil
	})
}

// SetCommissionRate sets the trade commission in percent (0-100)
func (e *Engine) SetCommissionRate(caller common.Address, rate uint64) error {
	return e.adminSet("set_commission_rate", caller, func(cfg *GlobalConfig) error {
		if rate > MaxCommissionRate {
			return fmt.Errorf("%w: commission rate %d exceeds %d", ErrInvalidPrice, rate, MaxCommissionRate)
		}
		cfg.CommissionRate = rate
		return nil
	})
}

// SetReserveCap sets the ceiling on total listed quantity. It may not drop
// below what is already listed.
func (e *Engine) SetReserveCap(caller common.Address, limit uint64) error {
	return e.adminSet("set_reserve_cap", caller, func(cfg *GlobalConfig) error {
		if limit == 0 {
			return fmt.Errorf("%w: reserve cap must be positive", ErrInvalidQuantity)
		}
		if limit < cfg.CurrentReserve {
			return fmt.Errorf("%w: cap %d below current reserve %d", ErrReserveCapExceeded, limit, cfg.CurrentReserve)
		}
		cfg.ReserveCap = limit
		return nil
	})
}

// SetMaxListingPerAccount sets the per-account listing ceiling (> 0).
// Existing listings above the new cap stay but cannot grow.
func (e *Engine) SetMaxListingPerAccount(caller common.Address, limit uint64) error {
	return e.adminSet("set_max_listing_per_account", caller, func(cfg *GlobalConfig) error {
		if limit == 0 {
			return fmt.Errorf("%w: per-account listing cap must be positive", ErrInvalidQuantity)
		}
		cfg.MaxListingPerAccount = limit
		return nil
	})
}

// DepositCurrency credits amount of settlement currency to account (owner only)
func (e *Engine) DepositCurrency(caller, account common.Address, amount uint64) error {
	_, err := e.execute("deposit_currency", func(o *op) error {
		if err := requireOwner(o.config(), caller); err != nil {
			return err
		}
		if amount == 0 {
			return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidQuantity)
		}
		bal, err := safemath.Add(o.currency(account), amount)
		if err != nil {
			return err
		}
		o.setCurrency(account, bal)
		return nil
	})
	if err == nil {
		e.log.Infow("currency_deposited", "account", account.Hex(), "amount", amount)
	}
	return err
}

// MintInventory credits quantity goods units to account's gross holdings (owner only)
func (e *Engine) MintInventory(caller, account common.Address, quantity uint64) error {
	_, err := e.execute("mint_inventory", func(o *op) error {
		if err := requireOwner(o.config(), caller); err != nil {
			return err
		}
		if quantity == 0 {
			return fmt.Errorf("%w: mint quantity must be positive", ErrInvalidQuantity)
		}
		inv, err := safemath.Add(o.inventory(account), quantity)
		if err != nil {
			return err
		}
		o.setInventory(account, inv)
		return nil
	})
	if err == nil {
		e.log.Infow("inventory_minted", "account", account.Hex(), "quantity", quantity)
	}
	return err
}
