// Package evm is a thin JSON-RPC layer over go-ethereum used by the chain
// readers. It exposes single and batched eth_call against the latest block.
package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultBatchSize bounds the number of eth_call requests per JSON-RPC batch.
const DefaultBatchSize = 100

// Call is one pending eth_call.
type Call struct {
	To   common.Address
	Data []byte
}

// Result is the outcome of one call in a batch. Err is set when that
// individual call reverted or failed; the batch itself may still succeed.
type Result struct {
	Data []byte
	Err  error
}

// Caller is the read surface the chain readers depend on.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	CallBatch(ctx context.Context, calls []Call) ([]Result, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
}

// Client implements Caller over an HTTP or WebSocket endpoint.
type Client struct {
	rpc       *rpc.Client
	eth       *ethclient.Client
	batchSize int
	logger    *slog.Logger
}

var _ Caller = (*Client)(nil)

// Dial connects to the endpoint. batchSize <= 0 uses DefaultBatchSize.
func Dial(ctx context.Context, url string, batchSize int, logger *slog.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("evm: dial: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		rpc:       rc,
		eth:       ethclient.NewClient(rc),
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "evm")),
	}, nil
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}
	return id, nil
}

// Call performs one eth_call with no sender.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// CallBatch sends the calls as JSON-RPC batches of at most batchSize
// requests. Results are returned in call order.
func (c *Client) CallBatch(ctx context.Context, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))
	for start := 0; start < len(calls); start += c.batchSize {
		end := min(start+c.batchSize, len(calls))
		chunk := calls[start:end]

		outs := make([]hexutil.Bytes, len(chunk))
		elems := make([]rpc.BatchElem, len(chunk))
		for i, call := range chunk {
			elems[i] = rpc.BatchElem{
				Method: "eth_call",
				Args: []any{
					map[string]any{"to": call.To, "data": hexutil.Bytes(call.Data)},
					"latest",
				},
				Result: &outs[i],
			}
		}
		if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
			return nil, fmt.Errorf("evm: batch call: %w", err)
		}
		for i, el := range elems {
			if el.Error != nil {
				results[start+i] = Result{Err: el.Error}
				continue
			}
			results[start+i] = Result{Data: outs[i]}
		}
		c.logger.DebugContext(ctx, "batch sent", slog.Int("calls", len(chunk)))
	}
	return results, nil
}

// CodeAt returns the deployed code at addr.
func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// Close releases the connection.
func (c *Client) Close() {
	c.rpc.Close()
}
