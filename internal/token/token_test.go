package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	assetAddr = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob       = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestCheckResult(t *testing.T) {
	trueData, err := EncodeResult(true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	falseData, err := EncodeResult(false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := CheckResult(nil); err != nil {
		t.Fatalf("empty return should succeed: %v", err)
	}
	if err := CheckResult(trueData); err != nil {
		t.Fatalf("true should succeed: %v", err)
	}
	if err := CheckResult(falseData); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("false should fail, got %v", err)
	}
	if err := CheckResult([]byte{0x01}); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("short data should fail, got %v", err)
	}
}

func TestSafeTransferBothVariants(t *testing.T) {
	ledger := NewLedger()
	ledger.Mint(assetAddr, alice, uint256.NewInt(100))

	for _, tok := range []Token{NewStandard(ledger, assetAddr), NewSilent(ledger, assetAddr)} {
		if err := SafeTransfer(tok, alice, bob, uint256.NewInt(10)); err != nil {
			t.Fatalf("%T transfer: %v", tok, err)
		}
		if err := SafeTransfer(tok, alice, bob, uint256.NewInt(1000)); !errors.Is(err, ErrTransferFailed) {
			t.Fatalf("%T overdraft should fail, got %v", tok, err)
		}
	}

	if got := ledger.Balance(assetAddr, bob).Uint64(); got != 20 {
		t.Fatalf("bob balance: %d", got)
	}
}

func TestSafeTransferFromUsesAllowance(t *testing.T) {
	ledger := NewLedger()
	tok := NewStandard(ledger, assetAddr)
	ledger.Mint(assetAddr, alice, uint256.NewInt(50))

	if err := SafeTransferFrom(tok, bob, alice, bob, uint256.NewInt(5)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected failure without allowance, got %v", err)
	}
	ledger.Approve(assetAddr, alice, bob, uint256.NewInt(30))
	if err := SafeTransferFrom(tok, bob, alice, bob, uint256.NewInt(30)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := ledger.Balance(assetAddr, alice).Uint64(); got != 20 {
		t.Fatalf("alice balance: %d", got)
	}
}

func TestLedgerRevertToSnapshot(t *testing.T) {
	ledger := NewLedger()
	ledger.Mint(assetAddr, alice, uint256.NewInt(100))

	snap := ledger.Snapshot()
	if err := ledger.move(assetAddr, alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("move: %v", err)
	}
	ledger.Approve(assetAddr, alice, bob, uint256.NewInt(7))
	ledger.RevertToSnapshot(snap)

	if got := ledger.Balance(assetAddr, alice).Uint64(); got != 100 {
		t.Fatalf("alice balance after revert: %d", got)
	}
	if got := ledger.Balance(assetAddr, bob).Uint64(); got != 0 {
		t.Fatalf("bob balance after revert: %d", got)
	}
	if err := ledger.spend(assetAddr, bob, alice, bob, uint256.NewInt(1)); err != ErrInsufficientAllowance {
		t.Fatalf("allowance should be reverted, got %v", err)
	}
}

func TestLedgerCommitDropsJournal(t *testing.T) {
	l := NewLedger()
	l.Mint(assetAddr, alice, uint256.NewInt(100))
	if err := l.move(assetAddr, alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("move: %v", err)
	}
	l.Commit()
	if len(l.journal) != 0 {
		t.Fatalf("journal not dropped: %d entries", len(l.journal))
	}

	id := l.Snapshot()
	l.Mint(assetAddr, bob, uint256.NewInt(5))
	l.RevertToSnapshot(id)
	if got := l.Balance(assetAddr, bob).Uint64(); got != 40 {
		t.Fatalf("bob balance: got %d want 40", got)
	}
	if got := l.Balance(assetAddr, alice).Uint64(); got != 60 {
		t.Fatalf("alice balance: got %d want 60", got)
	}
}
