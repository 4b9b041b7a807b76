package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract binds an ABI to an address.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
}

// ParseABI parses a JSON ABI definition.
func ParseABI(def string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("evm: parse abi: %w", err)
	}
	return parsed, nil
}

// MustParseABI is ParseABI for package-level ABI constants.
func MustParseABI(def string) abi.ABI {
	parsed, err := ParseABI(def)
	if err != nil {
		panic(err)
	}
	return parsed
}

// Pack builds the Call for method.
func (c Contract) Pack(method string, args ...any) (Call, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return Call{}, fmt.Errorf("evm: pack %s: %w", method, err)
	}
	return Call{To: c.Address, Data: data}, nil
}

// Unpack decodes the return data of method.
func (c Contract) Unpack(method string, data []byte) ([]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("evm: unpack %s: empty return data", method)
	}
	vals, err := c.ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack %s: %w", method, err)
	}
	return vals, nil
}

// Unpack1 decodes a single return value of type T.
func Unpack1[T any](c Contract, method string, data []byte) (T, error) {
	var zero T
	vals, err := c.Unpack(method, data)
	if err != nil {
		return zero, err
	}
	if len(vals) == 0 {
		return zero, fmt.Errorf("evm: unpack %s: no return values", method)
	}
	v, ok := vals[0].(T)
	if !ok {
		return zero, fmt.Errorf("evm: unpack %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}
