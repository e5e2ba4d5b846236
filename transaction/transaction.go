// Package transaction holds the legacy, replay-protected transaction model
// and its canonical binary encoding.
package transaction

import (
	"errors"
	"math/big"

	"github.com/umbracle/ethgo"
)

// ErrInvalidSignature is returned when a signature is missing a component
// or does not fit in 256 bits.
var ErrInvalidSignature = errors.New("invalid signature")

// Unsigned is a fully assembled transaction that has not been signed yet.
// A nil To means the transaction creates a contract.
type Unsigned struct {
	From     ethgo.Address
	To       *ethgo.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
	ChainID  uint64
}

// IsCreation reports whether the transaction deploys a contract.
func (u *Unsigned) IsCreation() bool {
	return u.To == nil
}

// Signed is an Unsigned transaction with its replay-protected signature.
type Signed struct {
	Unsigned
	V *big.Int
	R *big.Int
	S *big.Int
}

// Parity is the y-parity of a signature, which selects one of the two
// public keys it can recover to.
type Parity uint8

const (
	Even Parity = 0
	Odd  Parity = 1
)

func (p Parity) String() string {
	if p == Odd {
		return "odd"
	}
	return "even"
}

// Signature is a secp256k1 signature as returned by a signing callback.
type Signature struct {
	R       *big.Int
	S       *big.Int
	YParity Parity
}

var (
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	big27      = big.NewInt(27)
	big35      = big.NewInt(35)
)

// Validate checks that r and s are present 256-bit unsigned integers.
func (s *Signature) Validate() error {
	if s == nil || s.R == nil || s.S == nil {
		return ErrInvalidSignature
	}
	for _, n := range []*big.Int{s.R, s.S} {
		if n.Sign() < 0 || n.Cmp(maxUint256) > 0 {
			return ErrInvalidSignature
		}
	}
	if s.YParity != Even && s.YParity != Odd {
		return ErrInvalidSignature
	}
	return nil
}

// DeriveV returns parity + 35 + 2*chainID.
func DeriveV(parity Parity, chainID uint64) *big.Int {
	v := new(big.Int).SetUint64(chainID)
	v.Lsh(v, 1)
	v.Add(v, big35)
	if parity == Odd {
		v.Add(v, big.NewInt(1))
	}
	return v
}

// WithSignature merges sig into u.
func WithSignature(u *Unsigned, sig *Signature) (*Signed, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return &Signed{
		Unsigned: *u,
		V:        DeriveV(sig.YParity, u.ChainID),
		R:        new(big.Int).Set(sig.R),
		S:        new(big.Int).Set(sig.S),
	}, nil
}
