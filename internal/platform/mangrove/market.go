// Package mangrove reads Kandel ladders and their Mangrove offer lists over
// JSON-RPC.
package mangrove

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/platform/evm"
)

// AllowedMarket is one (base, quote, tickSpacing) triple the chain registry
// accepts.
type AllowedMarket struct {
	Base        common.Address
	Quote       common.Address
	TickSpacing uint64
}

// Resolution is the result of resolving a ladder address.
type Resolution struct {
	Market   domain.Market
	Mangrove common.Address
}

// ResolveMarket reads the ladder's market and token metadata. An address with
// no code, a failed read, or a pair outside allowed yields a
// *domain.StartupConfigError wrapping domain.ErrMarketNotFound. An empty
// allowed list accepts any market. A non-zero expectedMangrove must match the
// ladder's MGV().
func ResolveMarket(ctx context.Context, caller evm.Caller, ladder, expectedMangrove common.Address, allowed []AllowedMarket) (Resolution, error) {
	notFound := func(reason string, err error) error {
		if err == nil {
			err = domain.ErrMarketNotFound
		} else {
			err = fmt.Errorf("%w: %w", domain.ErrMarketNotFound, err)
		}
		return &domain.StartupConfigError{Reason: reason, Err: err}
	}

	code, err := caller.CodeAt(ctx, ladder)
	if err != nil {
		return Resolution{}, notFound("ladder code lookup failed", err)
	}
	if len(code) == 0 {
		return Resolution{}, notFound("no contract at ladder address", nil)
	}

	k := evm.Contract{Address: ladder, ABI: kandelABI}
	calls := make([]evm.Call, 0, 4)
	for _, m := range []string{"BASE", "QUOTE", "TICK_SPACING", "MGV"} {
		c, err := k.Pack(m)
		if err != nil {
			return Resolution{}, err
		}
		calls = append(calls, c)
	}
	res, err := caller.CallBatch(ctx, calls)
	if err != nil {
		return Resolution{}, notFound("ladder market read failed", err)
	}
	if err := firstErr(res); err != nil {
		return Resolution{}, notFound("ladder market read failed", err)
	}

	base, err1 := evm.Unpack1[common.Address](k, "BASE", res[0].Data)
	quote, err2 := evm.Unpack1[common.Address](k, "QUOTE", res[1].Data)
	spacing, err3 := evm.Unpack1[*big.Int](k, "TICK_SPACING", res[2].Data)
	mgv, err4 := evm.Unpack1[common.Address](k, "MGV", res[3].Data)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return Resolution{}, notFound("ladder market decode failed", err)
	}
	if !spacing.IsUint64() {
		return Resolution{}, notFound("tick spacing out of range", nil)
	}

	if expectedMangrove != (common.Address{}) && mgv != expectedMangrove {
		return Resolution{}, &domain.StartupConfigError{
			Reason: fmt.Sprintf("ladder uses mangrove %s, expected %s", mgv.Hex(), expectedMangrove.Hex()),
			Err:    domain.ErrMarketNotFound,
		}
	}

	if len(allowed) > 0 && !isAllowed(allowed, base, quote, spacing.Uint64()) {
		return Resolution{}, notFound(fmt.Sprintf("market %s/%s (tick spacing %d) is not listed", base.Hex(), quote.Hex(), spacing.Uint64()), nil)
	}

	tokens := readTokens(ctx, caller, base, quote)
	return Resolution{
		Market: domain.Market{
			Base:        tokens[0],
			Quote:       tokens[1],
			TickSpacing: spacing.Uint64(),
		},
		Mangrove: mgv,
	}, nil
}

func isAllowed(allowed []AllowedMarket, base, quote common.Address, spacing uint64) bool {
	for _, m := range allowed {
		if m.Base == base && m.Quote == quote && m.TickSpacing == spacing {
			return true
		}
	}
	return false
}

// readTokens fetches symbol and decimals. Failures leave the symbol empty or
// the decimals unknown rather than failing resolution.
func readTokens(ctx context.Context, caller evm.Caller, addrs ...common.Address) []domain.Token {
	tokens := make([]domain.Token, len(addrs))
	calls := make([]evm.Call, 0, 2*len(addrs))
	for i, a := range addrs {
		tokens[i].Address = a
		t := evm.Contract{Address: a, ABI: erc20ABI}
		sym, _ := t.Pack("symbol")
		dec, _ := t.Pack("decimals")
		calls = append(calls, sym, dec)
	}

	res, err := caller.CallBatch(ctx, calls)
	if err != nil {
		return tokens
	}
	for i, a := range addrs {
		t := evm.Contract{Address: a, ABI: erc20ABI}
		if r := res[2*i]; r.Err == nil {
			if sym, err := evm.Unpack1[string](t, "symbol", r.Data); err == nil {
				tokens[i].Symbol = sym
			}
		}
		if r := res[2*i+1]; r.Err == nil {
			if dec, err := evm.Unpack1[uint8](t, "decimals", r.Data); err == nil {
				tokens[i].Decimals = int32(dec)
				tokens[i].DecimalsKnown = true
			}
		}
	}
	return tokens
}

func firstErr(res []evm.Result) error {
	for _, r := range res {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
