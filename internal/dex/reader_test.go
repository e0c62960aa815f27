package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"pairEngine/internal/quote"
	"pairEngine/internal/uq"
)

var (
	testFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	testToken0  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testToken1  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// fakeCaller answers eth_call by contract address and method name.
type fakeCaller struct {
	abis      map[common.Address]abi.ABI
	responses map[common.Address]map[string][]interface{}
	raw       map[common.Address]map[string][]byte
	failures  int
	calls     int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient rpc error")
	}
	parsed, ok := f.abis[*msg.To]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", msg.To.Hex())
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if data, ok := f.raw[*msg.To][method.Name]; ok {
		return data, nil
	}
	values, ok := f.responses[*msg.To][method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s", method.Name)
	}
	return method.Outputs.Pack(values...)
}

func newFakeChain(t *testing.T) *fakeCaller {
	t.Helper()
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("pair abi: %v", err)
	}
	factoryABI, err := FactoryABI()
	if err != nil {
		t.Fatalf("factory abi: %v", err)
	}
	price0 := new(big.Int).Lsh(big.NewInt(3), 112)
	return &fakeCaller{
		abis: map[common.Address]abi.ABI{testPair: pairABI, testFactory: factoryABI},
		responses: map[common.Address]map[string][]interface{}{
			testPair: {
				"token0":               {testToken0},
				"token1":               {testToken1},
				"getReserves":          {big.NewInt(1000), big.NewInt(3000), uint32(100)},
				"price0CumulativeLast": {price0},
				"price1CumulativeLast": {big.NewInt(0)},
				"kLast":                {big.NewInt(3_000_000)},
				"totalSupply":          {big.NewInt(1732)},
			},
			testFactory: {
				"getPair": {testPair},
			},
		},
	}
}

func TestPairReaderState(t *testing.T) {
	caller := newFakeChain(t)
	reader := NewPairReader(caller, ReaderConfig{})
	ctx := context.Background()

	state, err := reader.PairState(ctx, testPair, nil)
	if err != nil {
		t.Fatalf("pair state: %v", err)
	}
	if state.TokenA != testToken0 || state.TokenB != testToken1 {
		t.Fatalf("tokens mismatch: %+v", state)
	}
	if state.ReserveA != "1000" || state.ReserveB != "3000" || state.BlockTimestampLast != 100 {
		t.Fatalf("reserves mismatch: %+v", state)
	}
	if state.KLast != "3000000" || state.TotalSupply != "1732" {
		t.Fatalf("words mismatch: %+v", state)
	}

	before := caller.calls
	if _, _, err := reader.Tokens(ctx, testPair); err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if caller.calls != before {
		t.Fatalf("tokens should be cached")
	}
}

func TestCurrentCumulativePrices(t *testing.T) {
	reader := NewPairReader(newFakeChain(t), ReaderConfig{})
	acc, err := reader.CurrentCumulativePrices(context.Background(), testPair, nil, 110)
	if err != nil {
		t.Fatalf("current cumulative prices: %v", err)
	}
	// stored 3.0 plus 10s at price 3000/1000
	want := new(uint256.Int).Lsh(uint256.NewInt(33), uq.Resolution)
	if !acc.PriceACumulative.Eq(want) {
		t.Fatalf("price0 cumulative: got %s want %s", acc.PriceACumulative.Dec(), want.Dec())
	}
	if acc.Timestamp != 110 {
		t.Fatalf("timestamp: got %d", acc.Timestamp)
	}
}

func TestFactoryReservesQuote(t *testing.T) {
	caller := newFakeChain(t)
	caller.failures = 1
	reader := NewPairReader(caller, ReaderConfig{MaxRetries: 2, RetryBackoff: 1})
	src := FactoryReserves{Reader: reader, Factory: testFactory}
	ctx := context.Background()

	in, out, err := src.Reserves(ctx, testToken1, testToken0)
	if err != nil {
		t.Fatalf("reserves: %v", err)
	}
	if in.Uint64() != 3000 || out.Uint64() != 1000 {
		t.Fatalf("orientation: got %d/%d", in.Uint64(), out.Uint64())
	}

	amounts, err := quote.GetAmountsOut(ctx, src, uint256.NewInt(100), []common.Address{testToken0, testToken1})
	if err != nil {
		t.Fatalf("amounts out: %v", err)
	}
	want, _ := quote.GetAmountOut(uint256.NewInt(100), uint256.NewInt(1000), uint256.NewInt(3000))
	if !amounts[1].Eq(want) {
		t.Fatalf("amount out: got %s want %s", amounts[1].Dec(), want.Dec())
	}
}

func TestGetPairNotFound(t *testing.T) {
	caller := newFakeChain(t)
	caller.responses[testFactory]["getPair"] = []interface{}{common.Address{}}
	reader := NewPairReader(caller, ReaderConfig{})
	_, err := reader.GetPair(context.Background(), testFactory, testToken0, testToken1)
	if !errors.Is(err, ErrPairNotFound) {
		t.Fatalf("expected ErrPairNotFound, got %v", err)
	}
}

func TestTokenMetaBytes32Fallback(t *testing.T) {
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	symbol := make([]byte, 32)
	copy(symbol, "MKR")

	caller := &fakeCaller{
		abis: map[common.Address]abi.ABI{testToken0: stringABI, testToken1: stringABI},
		responses: map[common.Address]map[string][]interface{}{
			testToken0: {"decimals": {uint8(6)}, "symbol": {"USDC"}},
			testToken1: {"decimals": {uint8(18)}},
		},
		raw: map[common.Address]map[string][]byte{
			testToken1: {"symbol": symbol},
		},
	}
	reader := NewPairReader(caller, ReaderConfig{})
	ctx := context.Background()

	meta, err := reader.TokenMeta(ctx, testToken0)
	if err != nil {
		t.Fatalf("token meta: %v", err)
	}
	if meta.Decimals != 6 || meta.Symbol != "USDC" {
		t.Fatalf("meta mismatch: %+v", meta)
	}

	meta, err = reader.TokenMeta(ctx, testToken1)
	if err != nil {
		t.Fatalf("token meta: %v", err)
	}
	if meta.Decimals != 18 || meta.Symbol != "MKR" {
		t.Fatalf("bytes32 symbol not decoded: %+v", meta)
	}
}
