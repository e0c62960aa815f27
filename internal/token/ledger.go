package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type balanceKey struct {
	token   common.Address
	account common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type journalEntry struct {
	balance   *balanceKey
	allowance *allowanceKey
	prev      uint256.Int
}

// Ledger is an in-memory multi-asset balance book with a revertible journal.
type Ledger struct {
	mu         sync.Mutex
	balances   map[balanceKey]uint256.Int
	allowances map[allowanceKey]uint256.Int
	journal    []journalEntry
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]uint256.Int),
		allowances: make(map[allowanceKey]uint256.Int),
	}
}

// Snapshot returns an identifier for the current journal position.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

// RevertToSnapshot undoes every change recorded after the snapshot.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		entry := l.journal[i]
		if entry.balance != nil {
			l.balances[*entry.balance] = entry.prev
		} else {
			l.allowances[*entry.allowance] = entry.prev
		}
	}
	l.journal = l.journal[:id]
}

// Commit drops the journal. Snapshot ids taken before it are no longer
// valid, so it must only be called with no operation in progress.
func (l *Ledger) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = nil
}

// Balance returns the balance of account in token.
func (l *Ledger) Balance(token, account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balances[balanceKey{token: token, account: account}]
	return bal.Clone()
}

// Mint credits amount of token to account.
func (l *Ledger) Mint(token, to common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey{token: token, account: to}
	bal := l.balances[key]
	l.setBalance(key, *new(uint256.Int).Add(&bal, amount))
}

// Approve sets the allowance of spender over owner's token balance.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{token: token, owner: owner, spender: spender}
	l.journal = append(l.journal, journalEntry{allowance: &key, prev: l.allowances[key]})
	l.allowances[key] = *amount
}

func (l *Ledger) move(token, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(token, from, to, amount)
}

func (l *Ledger) moveLocked(token, from, to common.Address, amount *uint256.Int) error {
	fromKey := balanceKey{token: token, account: from}
	fromBal := l.balances[fromKey]
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	l.setBalance(fromKey, *new(uint256.Int).Sub(&fromBal, amount))

	toKey := balanceKey{token: token, account: to}
	toBal := l.balances[toKey]
	l.setBalance(toKey, *new(uint256.Int).Add(&toBal, amount))
	return nil
}

func (l *Ledger) spend(token, spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if spender != from {
		key := allowanceKey{token: token, owner: from, spender: spender}
		allowed := l.allowances[key]
		if allowed.Lt(amount) {
			return ErrInsufficientAllowance
		}
		l.journal = append(l.journal, journalEntry{allowance: &key, prev: allowed})
		l.allowances[key] = *new(uint256.Int).Sub(&allowed, amount)
	}
	return l.moveLocked(token, from, to, amount)
}

func (l *Ledger) setBalance(key balanceKey, value uint256.Int) {
	k := key
	l.journal = append(l.journal, journalEntry{balance: &k, prev: l.balances[key]})
	l.balances[key] = value
}
