package issuer

import "fmt"

// ledger is the issuer's fungible-token book: unique owned balances, no
// negative balances, explicit registration before crediting. It lives in
// the issuer object's durable state and is mutated atomically within a
// single handler invocation.
type ledger struct {
	TotalSupply uint64            `json:"totalSupply"`
	Sold        uint64            `json:"sold"`
	Balances    map[string]uint64 `json:"balances"`
	Storage     map[string]bool   `json:"storage"`
}

func newLedger(owner string, totalSupply uint64) *ledger {
	l := &ledger{
		TotalSupply: totalSupply,
		Balances:    map[string]uint64{},
		Storage:     map[string]bool{},
	}
	l.register(owner)
	l.Balances[owner] = totalSupply
	return l
}

// register opens an account. Idempotent.
func (l *ledger) register(account string) {
	l.Storage[account] = true
	if _, ok := l.Balances[account]; !ok {
		l.Balances[account] = 0
	}
}

func (l *ledger) hasStorage(account string) bool {
	return l.Storage[account]
}

func (l *ledger) balanceOf(account string) uint64 {
	return l.Balances[account]
}

// transfer moves tokens between registered accounts.
func (l *ledger) transfer(from, to string, amount uint64) error {
	if !l.hasStorage(to) {
		return fmt.Errorf("account %q is not registered", to)
	}
	if l.Balances[from] < amount {
		return fmt.Errorf("account %q holds %d tokens, cannot debit %d", from, l.Balances[from], amount)
	}
	l.Balances[from] -= amount
	l.Balances[to] += amount
	return nil
}
