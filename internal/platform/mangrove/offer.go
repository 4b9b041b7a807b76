package mangrove

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OLKey identifies one offer list on Mangrove.
type OLKey struct {
	Outbound    common.Address `abi:"outbound_tkn"`
	Inbound     common.Address `abi:"inbound_tkn"`
	TickSpacing *big.Int       `abi:"tickSpacing"`
}

// Packed offer word, most significant bits first:
// prev(32) next(32) tick(21, signed) gives(127), then unused low bits.
const (
	tickBits   = 21
	givesBits  = 127
	givesShift = 256 - 32 - 32 - tickBits - givesBits
	tickShift  = givesShift + givesBits
)

var (
	tickMask  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), tickBits), big.NewInt(1))
	givesMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), givesBits), big.NewInt(1))
)

// DecodeOffer extracts tick and gives from a packed offer word.
func DecodeOffer(word *big.Int) (tick int64, gives *big.Int) {
	raw := new(big.Int).Rsh(word, tickShift)
	raw.And(raw, tickMask)
	tick = raw.Int64()
	if tick >= 1<<(tickBits-1) {
		tick -= 1 << tickBits
	}

	gives = new(big.Int).Rsh(word, givesShift)
	gives.And(gives, givesMask)
	return tick, gives
}

// EncodeOffer packs tick and gives with zero prev/next pointers.
func EncodeOffer(tick int64, gives *big.Int) *big.Int {
	t := big.NewInt(tick)
	if tick < 0 {
		t.Add(t, new(big.Int).Lsh(big.NewInt(1), tickBits))
	}
	word := new(big.Int).Lsh(t, tickShift)
	g := new(big.Int).And(gives, givesMask)
	return word.Or(word, g.Lsh(g, givesShift))
}
