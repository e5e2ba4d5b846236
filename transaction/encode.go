package transaction

import (
	"encoding/binary"
	"math/big"

	"github.com/umbracle/ethgo"
	"github.com/umbracle/fastrlp"
	"golang.org/x/crypto/sha3"
)

// ListEncoder serializes an ordered list of byte strings into its
// length-prefixed binary form.
type ListEncoder func(items [][]byte) []byte

var _ ListEncoder = RLPList

// RLPList encodes items as an RLP list.
func RLPList(items [][]byte) []byte {
	a := fastrlp.DefaultArenaPool.Get()
	defer fastrlp.DefaultArenaPool.Put(a)

	v := a.NewArray()
	for _, item := range items {
		v.Set(a.NewCopyBytes(item))
	}
	return v.MarshalTo(nil)
}

// TrimLeftZeros removes the leading run of zero bytes. Canonical integer
// encoding forbids them.
func TrimLeftZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

func uintBytes(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return TrimLeftZeros(buf[:])
}

func bigBytes(n *big.Int) []byte {
	if n == nil {
		return []byte{}
	}
	return TrimLeftZeros(n.Bytes())
}

func addressBytes(to *ethgo.Address) []byte {
	if to == nil {
		return []byte{}
	}
	return append([]byte{}, to[:]...)
}

func baseFields(u *Unsigned) [][]byte {
	data := u.Data
	if data == nil {
		data = []byte{}
	}
	return [][]byte{
		uintBytes(u.Nonce),
		bigBytes(u.GasPrice),
		uintBytes(u.GasLimit),
		addressBytes(u.To),
		bigBytes(u.Value),
		data,
	}
}

// UnsignedFields returns the signing layout: the six transaction fields
// followed by chainId and two empty strings.
func UnsignedFields(u *Unsigned) [][]byte {
	return append(baseFields(u), uintBytes(u.ChainID), []byte{}, []byte{})
}

// SignedFields returns the broadcast layout: the six transaction fields
// followed by v, r and s.
func SignedFields(s *Signed) [][]byte {
	return append(baseFields(&s.Unsigned), bigBytes(s.V), bigBytes(s.R), bigBytes(s.S))
}

// EncodeUnsigned returns the bytes a signer signs over.
func EncodeUnsigned(u *Unsigned) []byte {
	return RLPList(UnsignedFields(u))
}

// EncodeSigned returns the bytes submitted to the node.
func EncodeSigned(s *Signed) []byte {
	return RLPList(SignedFields(s))
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// SigningHash is the keccak256 digest of the unsigned encoding.
func SigningHash(u *Unsigned) ethgo.Hash {
	return toHash(Keccak256(EncodeUnsigned(u)))
}

// Hash returns the transaction identifier of raw signed bytes.
func Hash(raw []byte) ethgo.Hash {
	return toHash(Keccak256(raw))
}

func toHash(b []byte) (h ethgo.Hash) {
	copy(h[:], b)
	return h
}
