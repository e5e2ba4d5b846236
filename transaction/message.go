package transaction

import (
	"math/big"
	"strconv"
)

const messagePrefix = "\x19Ethereum Signed Message:\n"

// PrefixMessage returns msg with the personal-message prefix applied.
func PrefixMessage(msg []byte) []byte {
	out := make([]byte, 0, len(messagePrefix)+20+len(msg))
	out = append(out, messagePrefix...)
	out = strconv.AppendInt(out, int64(len(msg)), 10)
	return append(out, msg...)
}

// EncodeMessageSignature returns r || s || v as 65 bytes, with v = parity + 27.
func EncodeMessageSignature(sig *Signature) ([]byte, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	out := make([]byte, 65)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:64])
	out[64] = byte(sig.YParity) + 27
	return out, nil
}

// ParseSignature splits a 65-byte r || s || v signature. v may be given as
// the raw parity or with the 27 offset.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != 65 {
		return nil, ErrInvalidSignature
	}
	v := b[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, ErrInvalidSignature
	}
	return &Signature{
		R:       new(big.Int).SetBytes(b[:32]),
		S:       new(big.Int).SetBytes(b[32:64]),
		YParity: Parity(v),
	}, nil
}
