package bank

import (
	restate "github.com/restatedev/sdk-go"

	"tokensale/models"
)

// ServiceName is the virtual-object name under which Bank is registered.
// Each object key is one native-currency account.
const ServiceName = "Bank"

const (
	stateKeyBalance = "balance"
	stateKeyLocked  = "locked"
)

// Bank holds the native-currency balance of one account. It carries no
// ledger bookkeeping beyond the balance itself.
type Bank struct{}

// Deposit credits spendable balance to the account.
func (Bank) Deposit(ctx restate.ObjectContext, amount uint64) (models.BalanceView, error) {
	balance, err := restate.Get[uint64](ctx, stateKeyBalance)
	if err != nil {
		return models.BalanceView{}, err
	}
	balance += amount
	restate.Set(ctx, stateKeyBalance, balance)

	ctx.Log().Info("Deposited native currency",
		"account", restate.Key(ctx),
		"amount", amount,
		"balance", balance)

	return balanceView(ctx)
}

// Lock moves spendable balance into the locked-but-recoverable bucket.
// Locked funds still count toward an exchange's purchase precondition.
func (Bank) Lock(ctx restate.ObjectContext, amount uint64) (models.BalanceView, error) {
	balance, err := restate.Get[uint64](ctx, stateKeyBalance)
	if err != nil {
		return models.BalanceView{}, err
	}
	if amount > balance {
		return models.BalanceView{}, models.ErrInsufficientBalance(amount, balance)
	}
	locked, err := restate.Get[uint64](ctx, stateKeyLocked)
	if err != nil {
		return models.BalanceView{}, err
	}

	restate.Set(ctx, stateKeyBalance, balance-amount)
	restate.Set(ctx, stateKeyLocked, locked+amount)

	return balanceView(ctx)
}

// Unlock releases locked balance back into the spendable bucket.
func (Bank) Unlock(ctx restate.ObjectContext, amount uint64) (models.BalanceView, error) {
	locked, err := restate.Get[uint64](ctx, stateKeyLocked)
	if err != nil {
		return models.BalanceView{}, err
	}
	if amount > locked {
		return models.BalanceView{}, models.ErrInsufficientBalance(amount, locked)
	}
	balance, err := restate.Get[uint64](ctx, stateKeyBalance)
	if err != nil {
		return models.BalanceView{}, err
	}

	restate.Set(ctx, stateKeyBalance, balance+amount)
	restate.Set(ctx, stateKeyLocked, locked-amount)

	return balanceView(ctx)
}

// Balance returns the account's balance (read-only).
func (Bank) Balance(ctx restate.ObjectSharedContext, _ restate.Void) (models.BalanceView, error) {
	return balanceView(ctx)
}

// Credit is the receiving side of a transfer. It is invoked only through
// the fire-and-forget send in Transfer.
func (Bank) Credit(ctx restate.ObjectContext, amount uint64) error {
	balance, err := restate.Get[uint64](ctx, stateKeyBalance)
	if err != nil {
		return err
	}
	restate.Set(ctx, stateKeyBalance, balance+amount)

	ctx.Log().Info("Credited native currency",
		"account", restate.Key(ctx),
		"amount", amount)
	return nil
}

// TransferOut debits the account and forwards the amount to the target.
// The sender never observes the outcome: an invalid target or an
// insufficient balance drops the transfer here, nothing is reported back.
func (Bank) TransferOut(ctx restate.ObjectContext, req models.TransferRequest) error {
	if req.To == "" {
		ctx.Log().Warn("Dropping transfer to invalid account",
			"from", restate.Key(ctx),
			"amount", req.Amount)
		return nil
	}

	balance, err := restate.Get[uint64](ctx, stateKeyBalance)
	if err != nil {
		return err
	}
	if req.Amount > balance {
		ctx.Log().Warn("Dropping transfer exceeding balance",
			"from", restate.Key(ctx),
			"to", req.To,
			"amount", req.Amount,
			"balance", balance)
		return nil
	}

	restate.Set(ctx, stateKeyBalance, balance-req.Amount)
	restate.ObjectSend(ctx, ServiceName, req.To, "Credit").Send(req.Amount)

	ctx.Log().Info("Transferred native currency",
		"from", restate.Key(ctx),
		"to", req.To,
		"amount", req.Amount)
	return nil
}

// Transfer is the fire-and-forget native-currency transfer primitive:
// it schedules a debit on the sending account and returns immediately.
func Transfer(ctx restate.Context, from, to string, amount uint64) {
	restate.ObjectSend(ctx, ServiceName, from, "TransferOut").
		Send(models.TransferRequest{To: to, Amount: amount})
}

func balanceView(ctx restate.ObjectSharedContext) (models.BalanceView, error) {
	balance, err := restate.Get[uint64](ctx, stateKeyBalance)
	if err != nil {
		return models.BalanceView{}, err
	}
	locked, err := restate.Get[uint64](ctx, stateKeyLocked)
	if err != nil {
		return models.BalanceView{}, err
	}
	return models.BalanceView{Spendable: balance, Locked: locked}, nil
}
