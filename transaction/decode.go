package transaction

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/umbracle/ethgo"
	"github.com/umbracle/fastrlp"
)

var errNotLegacy = errors.New("not a legacy transaction")

// Decode parses signed canonical bytes. The chain id is taken from v, the
// sender is not recovered and From is left zero.
func Decode(raw []byte) (*Signed, error) {
	p := fastrlp.DefaultParserPool.Get()
	defer fastrlp.DefaultParserPool.Put(p)

	v, err := p.Parse(raw)
	if err != nil {
		return nil, err
	}
	elems, err := v.GetElems()
	if err != nil {
		return nil, err
	}
	if len(elems) != 9 {
		return nil, fmt.Errorf("%w: expected 9 fields, found %d", errNotLegacy, len(elems))
	}

	fields := make([][]byte, len(elems))
	for i, e := range elems {
		b, err := e.Bytes()
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = append([]byte{}, b...)
	}

	tx := &Signed{}
	if tx.Nonce, err = fieldUint(fields[0]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	tx.GasPrice = new(big.Int).SetBytes(fields[1])
	if tx.GasLimit, err = fieldUint(fields[2]); err != nil {
		return nil, fmt.Errorf("gas limit: %w", err)
	}
	switch len(fields[3]) {
	case 0:
	case 20:
		to := ethgo.Address{}
		copy(to[:], fields[3])
		tx.To = &to
	default:
		return nil, fmt.Errorf("bad recipient length %d", len(fields[3]))
	}
	tx.Value = new(big.Int).SetBytes(fields[4])
	tx.Data = fields[5]
	tx.V = new(big.Int).SetBytes(fields[6])
	tx.R = new(big.Int).SetBytes(fields[7])
	tx.S = new(big.Int).SetBytes(fields[8])

	if tx.V.Cmp(big35) >= 0 {
		chainID := new(big.Int).Sub(tx.V, big35)
		chainID.Rsh(chainID, 1)
		if !chainID.IsUint64() {
			return nil, errors.New("chain id overflows uint64")
		}
		tx.ChainID = chainID.Uint64()
	}
	return tx, nil
}

// Parity returns the y-parity encoded in v. Replay protected values
// (v >= 35) and pre-replay-protection values 27 and 28 are understood;
// anything else reads the low bit of v.
func (s *Signed) Parity() Parity {
	if s.V == nil {
		return Even
	}
	var p *big.Int
	switch {
	case s.V.Cmp(big35) >= 0:
		p = new(big.Int).Sub(s.V, big35)
	case s.V.Cmp(big27) >= 0:
		p = new(big.Int).Sub(s.V, big27)
	default:
		p = s.V
	}
	if p.Bit(0) == 1 {
		return Odd
	}
	return Even
}

func fieldUint(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, errors.New("integer overflows uint64")
	}
	if len(b) > 0 && b[0] == 0 {
		return 0, errors.New("non-canonical integer")
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n, nil
}
