// Package balancer quotes swaps against a Balancer V3 router.
package balancer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/platform/evm"
)

const routerABIJSON = `[
	{"type":"function","name":"querySwapSingleTokenExactIn","stateMutability":"nonpayable","inputs":[
		{"name":"pool","type":"address"},
		{"name":"tokenIn","type":"address"},
		{"name":"tokenOut","type":"address"},
		{"name":"exactAmountIn","type":"uint256"},
		{"name":"sender","type":"address"},
		{"name":"userData","type":"bytes"}
	],"outputs":[{"name":"amountCalculated","type":"uint256"}]}
]`

const querySwapExactIn = "querySwapSingleTokenExactIn"

var routerABI = evm.MustParseABI(routerABIJSON)

// Base mainnet deployment used by the default configuration.
var (
	BaseRouter = common.HexToAddress("0x3f170631ed9821Ca51A59D996aB095162438DC10")
	BasePool   = common.HexToAddress("0x19e3e19945e7fd2a7856824c595981c7fe450bb5")
	BaseWETH   = common.HexToAddress("0x4200000000000000000000000000000000000006")
	BasePRL    = common.HexToAddress("0xfD28f108e95f4D41daAE9dbfFf707D677985998E")
)

// Router simulates exact-in swaps through eth_call. The query entry point is
// not a view function; it only succeeds when simulated without a sender.
type Router struct {
	caller evm.Caller
	router evm.Contract
}

var _ domain.VenueQuoter = (*Router)(nil)

// NewRouter binds the router at addr.
func NewRouter(caller evm.Caller, addr common.Address) *Router {
	return &Router{
		caller: caller,
		router: evm.Contract{Address: addr, ABI: routerABI},
	}
}

// QuoteExactIn returns the output amount, in tokenOut's smallest unit, for
// swapping amountIn of tokenIn through pool.
func (r *Router) QuoteExactIn(ctx context.Context, pool, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	call, err := r.router.Pack(querySwapExactIn, pool, tokenIn, tokenOut, amountIn, common.Address{}, []byte{})
	if err != nil {
		return nil, err
	}
	out, err := r.caller.Call(ctx, call.To, call.Data)
	if err != nil {
		return nil, fmt.Errorf("balancer: query swap: %w", err)
	}
	amount, err := evm.Unpack1[*big.Int](r.router, querySwapExactIn, out)
	if err != nil {
		return nil, fmt.Errorf("balancer: query swap: %w", err)
	}
	return amount, nil
}
