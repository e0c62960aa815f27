package pair

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SwapCallee is invoked during a swap after the outputs were sent and
// before the invariant is checked. It may call back into the pair, but
// mint, burn, swap, skim and sync fail with ErrLocked until it returns.
// Validating data is entirely the callee's responsibility.
type SwapCallee interface {
	OnSwap(sender common.Address, amountAOut, amountBOut *uint256.Int, data []byte) error
}

// SwapCalleeFunc adapts a function to SwapCallee.
type SwapCalleeFunc func(sender common.Address, amountAOut, amountBOut *uint256.Int, data []byte) error

func (f SwapCalleeFunc) OnSwap(sender common.Address, amountAOut, amountBOut *uint256.Int, data []byte) error {
	return f(sender, amountAOut, amountBOut, data)
}

// CalleeResolver finds the callee code living at a swap recipient.
type CalleeResolver interface {
	Callee(recipient common.Address) (SwapCallee, bool)
}

// Callees is a concurrency-safe CalleeResolver keyed by recipient address.
type Callees struct {
	mu   sync.RWMutex
	data map[common.Address]SwapCallee
}

func NewCallees() *Callees {
	return &Callees{data: make(map[common.Address]SwapCallee)}
}

func (c *Callees) Register(recipient common.Address, callee SwapCallee) {
	c.mu.Lock()
	c.data[recipient] = callee
	c.mu.Unlock()
}

func (c *Callees) Unregister(recipient common.Address) {
	c.mu.Lock()
	delete(c.data, recipient)
	c.mu.Unlock()
}

func (c *Callees) Callee(recipient common.Address) (SwapCallee, bool) {
	c.mu.RLock()
	callee, ok := c.data[recipient]
	c.mu.RUnlock()
	return callee, ok
}
