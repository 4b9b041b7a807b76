package mangrove

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/platform/evm"
)

var (
	ladderAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	mgvAddr    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	baseAddr   = common.HexToAddress("0x3000000000000000000000000000000000000003")
	quoteAddr  = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

type handler func(m *abi.Method, args []any) ([]any, error)

type contractStub struct {
	abi abi.ABI
	fn  handler
}

// fakeChain answers calls by decoding calldata against each contract's ABI.
type fakeChain struct {
	code      map[common.Address][]byte
	contracts map[common.Address]contractStub
	batchErr  error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		code:      map[common.Address][]byte{},
		contracts: map[common.Address]contractStub{},
	}
}

func (f *fakeChain) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	stub, ok := f.contracts[to]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	m, err := stub.abi.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	out, err := stub.fn(m, args)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(out...)
}

func (f *fakeChain) CallBatch(ctx context.Context, calls []evm.Call) ([]evm.Result, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	res := make([]evm.Result, len(calls))
	for i, c := range calls {
		data, err := f.Call(ctx, c.To, c.Data)
		res[i] = evm.Result{Data: data, Err: err}
	}
	return res, nil
}

func (f *fakeChain) CodeAt(_ context.Context, addr common.Address) ([]byte, error) {
	return f.code[addr], nil
}

type offerState struct {
	tick  int64
	gives int64
}

type ladderState struct {
	pricePoints uint32
	askIDs      []int64
	bidIDs      []int64
	offers      map[int64]offerState
	failOffer   int64
}

func (f *fakeChain) install(st *ladderState) {
	f.code[ladderAddr] = []byte{0x60}
	f.contracts[ladderAddr] = contractStub{abi: kandelABI, fn: func(m *abi.Method, args []any) ([]any, error) {
		switch m.Name {
		case "BASE":
			return []any{baseAddr}, nil
		case "QUOTE":
			return []any{quoteAddr}, nil
		case "TICK_SPACING":
			return []any{big.NewInt(1)}, nil
		case "MGV":
			return []any{mgvAddr}, nil
		case "params":
			return []any{uint32(0), big.NewInt(0), uint32(1), st.pricePoints}, nil
		case "reserveBalance":
			if args[0].(uint8) == 0 {
				return []any{big.NewInt(1000)}, nil
			}
			return []any{big.NewInt(2000)}, nil
		case "offerIdOfIndex":
			ids := st.askIDs
			if args[0].(uint8) == 1 {
				ids = st.bidIDs
			}
			return []any{big.NewInt(ids[args[1].(*big.Int).Int64()])}, nil
		}
		return nil, fmt.Errorf("unexpected %s", m.Name)
	}}
	f.contracts[mgvAddr] = contractStub{abi: mangroveABI, fn: func(m *abi.Method, args []any) ([]any, error) {
		id := args[1].(*big.Int).Int64()
		if id == st.failOffer {
			return nil, errors.New("execution reverted")
		}
		o, ok := st.offers[id]
		if !ok {
			return []any{new(big.Int)}, nil
		}
		outbound := reflect.ValueOf(args[0]).FieldByName("OutboundTkn").Interface().(common.Address)
		isAsk := id < 20
		if isAsk != (outbound == baseAddr) {
			return nil, fmt.Errorf("offer %d read on the wrong offer list", id)
		}
		return []any{EncodeOffer(o.tick, big.NewInt(o.gives))}, nil
	}}
	for addr, sym := range map[common.Address]string{baseAddr: "WETH", quoteAddr: "USDC"} {
		dec := uint8(18)
		if sym == "USDC" {
			dec = 6
		}
		f.contracts[addr] = contractStub{abi: erc20ABI, fn: func(m *abi.Method, _ []any) ([]any, error) {
			if m.Name == "symbol" {
				return []any{sym}, nil
			}
			return []any{dec}, nil
		}}
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeOffer(t *testing.T) {
	gives := new(big.Int).Lsh(big.NewInt(1), 126)
	for _, tick := range []int64{0, 1, -1, 887272, -887272, 12345} {
		word := EncodeOffer(tick, gives)
		// prev and next pointers must not leak into tick or gives.
		word.Or(word, new(big.Int).Lsh(big.NewInt(0xffffffff), 224))
		word.Or(word, new(big.Int).Lsh(big.NewInt(0xffffffff), 192))
		gotTick, gotGives := DecodeOffer(word)
		assert.Equal(t, tick, gotTick)
		assert.Equal(t, 0, gives.Cmp(gotGives))
	}
}

func TestDecodeOffer_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode inverts encode", prop.ForAll(
		func(tick int64, gives int64) bool {
			gotTick, gotGives := DecodeOffer(EncodeOffer(tick, big.NewInt(gives)))
			return gotTick == tick && gotGives.Int64() == gives
		},
		gen.Int64Range(-887272, 887272),
		gen.Int64Range(0, 1<<62),
	))

	properties.TestingRun(t)
}

func TestResolveMarket(t *testing.T) {
	chain := newFakeChain()
	chain.install(&ladderState{})

	res, err := ResolveMarket(context.Background(), chain, ladderAddr, mgvAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, mgvAddr, res.Mangrove)
	assert.Equal(t, "WETH", res.Market.Base.Symbol)
	assert.Equal(t, int32(18), res.Market.Base.Decimals)
	assert.True(t, res.Market.Base.DecimalsKnown)
	assert.Equal(t, "USDC", res.Market.Quote.Symbol)
	assert.Equal(t, int32(6), res.Market.Quote.Decimals)
	assert.Equal(t, uint64(1), res.Market.TickSpacing)
}

func TestResolveMarket_Allowed(t *testing.T) {
	chain := newFakeChain()
	chain.install(&ladderState{})
	ctx := context.Background()

	_, err := ResolveMarket(ctx, chain, ladderAddr, common.Address{}, []AllowedMarket{{Base: baseAddr, Quote: quoteAddr, TickSpacing: 1}})
	require.NoError(t, err)

	_, err = ResolveMarket(ctx, chain, ladderAddr, common.Address{}, []AllowedMarket{{Base: quoteAddr, Quote: baseAddr, TickSpacing: 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	assert.True(t, domain.IsFatal(err))
}

func TestResolveMarket_NoCode(t *testing.T) {
	chain := newFakeChain()
	_, err := ResolveMarket(context.Background(), chain, ladderAddr, common.Address{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	assert.True(t, domain.IsFatal(err))
}

func TestResolveMarket_MangroveMismatch(t *testing.T) {
	chain := newFakeChain()
	chain.install(&ladderState{})
	_, err := ResolveMarket(context.Background(), chain, ladderAddr, common.HexToAddress("0x99"), nil)
	require.Error(t, err)
	assert.True(t, domain.IsFatal(err))
}

func TestResolveMarket_UnknownDecimals(t *testing.T) {
	chain := newFakeChain()
	chain.install(&ladderState{})
	delete(chain.contracts, quoteAddr)

	res, err := ResolveMarket(context.Background(), chain, ladderAddr, common.Address{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Market.Quote.DecimalsKnown)
	assert.Empty(t, res.Market.Quote.Symbol)
	assert.Equal(t, "Quote", res.Market.QuoteSymbol())
}

func testMarket() domain.Market {
	return domain.Market{
		Base:        domain.Token{Address: baseAddr, Symbol: "WETH", Decimals: 18, DecimalsKnown: true},
		Quote:       domain.Token{Address: quoteAddr, Symbol: "USDC", Decimals: 6, DecimalsKnown: true},
		TickSpacing: 1,
	}
}

func TestReader_ReadLadder(t *testing.T) {
	chain := newFakeChain()
	chain.install(&ladderState{
		pricePoints: 3,
		askIDs:      []int64{0, 11, 12},
		bidIDs:      []int64{21, 22, 0},
		offers: map[int64]offerState{
			11: {tick: -100, gives: 500},
			12: {tick: 50, gives: 0},
			21: {tick: 200, gives: 7000},
			22: {tick: -5, gives: 1},
		},
	})

	raw, err := NewReader(chain, ladderAddr, mgvAddr, testMarket(), discard()).ReadLadder(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusActive, raw.Status)
	assert.Equal(t, uint64(3), raw.PricePoints)
	assert.Equal(t, int64(1000), raw.ReserveBase.Int64())
	assert.Equal(t, int64(2000), raw.ReserveQuote.Int64())

	require.Len(t, raw.Asks, 2)
	assert.Equal(t, uint64(11), raw.Asks[0].ID)
	assert.Equal(t, int64(-100), raw.Asks[0].Tick)
	assert.Equal(t, int64(500), raw.Asks[0].Gives.Int64())
	assert.Equal(t, uint64(12), raw.Asks[1].ID)
	assert.Equal(t, int64(0), raw.Asks[1].Gives.Int64())

	require.Len(t, raw.Bids, 2)
	assert.Equal(t, uint64(21), raw.Bids[0].ID)
	assert.Equal(t, int64(200), raw.Bids[0].Tick)
	assert.Equal(t, int64(-5), raw.Bids[1].Tick)
}

func TestReader_Status(t *testing.T) {
	ctx := context.Background()

	chain := newFakeChain()
	chain.install(&ladderState{pricePoints: 0})
	raw, err := NewReader(chain, ladderAddr, mgvAddr, testMarket(), discard()).ReadLadder(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, raw.Status)
	assert.Empty(t, raw.Asks)

	chain = newFakeChain()
	chain.install(&ladderState{
		pricePoints: 1,
		askIDs:      []int64{11},
		bidIDs:      []int64{0},
		offers:      map[int64]offerState{11: {tick: 1, gives: 0}},
	})
	raw, err = NewReader(chain, ladderAddr, mgvAddr, testMarket(), discard()).ReadLadder(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, raw.Status)
	assert.Len(t, raw.Asks, 1)
	assert.Empty(t, raw.Bids)
}

func TestReader_FailedOfferFailsRead(t *testing.T) {
	chain := newFakeChain()
	chain.install(&ladderState{
		pricePoints: 2,
		askIDs:      []int64{11, 12},
		bidIDs:      []int64{0, 0},
		offers:      map[int64]offerState{11: {tick: 1, gives: 5}, 12: {tick: 2, gives: 5}},
		failOffer:   12,
	})

	_, err := NewReader(chain, ladderAddr, mgvAddr, testMarket(), discard()).ReadLadder(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read ask offers")
}

func TestReader_TransportError(t *testing.T) {
	chain := newFakeChain()
	chain.install(&ladderState{pricePoints: 1})
	chain.batchErr = errors.New("connection refused")

	_, err := NewReader(chain, ladderAddr, mgvAddr, testMarket(), discard()).ReadLadder(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
