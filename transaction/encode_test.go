package transaction

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/ethgo"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 0)
	require.True(t, ok, s)
	return n
}

// eip155Tx is the worked example from EIP-155.
func eip155Tx(t *testing.T) *Unsigned {
	to := ethgo.HexToAddress("0x3535353535353535353535353535353535353535")
	return &Unsigned{
		To:       &to,
		Value:    mustBig(t, "1000000000000000000"),
		GasLimit: 21000,
		GasPrice: mustBig(t, "20000000000"),
		Nonce:    9,
		ChainID:  1,
	}
}

func TestTrimLeftZeros(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
	}{
		{nil, []byte{}},
		{[]byte{}, []byte{}},
		{[]byte{0, 0, 0}, []byte{}},
		{[]byte{0, 1, 0}, []byte{1, 0}},
		{[]byte{1, 0, 0}, []byte{1, 0, 0}},
		{[]byte{0, 0, 0xff, 0, 0x01}, []byte{0xff, 0, 0x01}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TrimLeftZeros(tt.in), "input %x", tt.in)
	}
}

func TestTrimLeftZerosProperties(t *testing.T) {
	f := func(b []byte) bool {
		got := TrimLeftZeros(b)
		if len(got) > 0 && got[0] == 0 {
			return false
		}
		stripped := b[:len(b)-len(got)]
		if !bytes.Equal(stripped, make([]byte, len(stripped))) {
			return false
		}
		if !bytes.Equal(got, b[len(stripped):]) {
			return false
		}
		return bytes.Equal(TrimLeftZeros(got), got)
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestEncodeUnsignedEIP155(t *testing.T) {
	u := eip155Tx(t)

	assert.Equal(t,
		"ec098504a817c800825208943535353535353535353535353535353535353535880de0b6b3a764000080018080",
		hex.EncodeToString(EncodeUnsigned(u)))
	assert.Equal(t,
		"0xdaf5a779ae972f972197303d7b574746c7ef83eadac0f2791ad23db92e4c8e53",
		SigningHash(u).String())
}

func TestEncodeSignedEIP155(t *testing.T) {
	u := eip155Tx(t)
	signed, err := WithSignature(u, &Signature{
		R:       mustBig(t, "0x28ef61340bd939bc2195fe537567866003e1a15d3c71ff63e1590620aa636276"),
		S:       mustBig(t, "0x67cbe9d8997f761aecb703304b3800ccf555c9f3dc64214b297fb1966a3b6d83"),
		YParity: Even,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(37), signed.V.Int64())

	want := mustHex(t, "f86c098504a817c800825208943535353535353535353535353535353535353535880de0b6b3a76400008025a028ef61340bd939bc2195fe537567866003e1a15d3c71ff63e1590620aa636276a067cbe9d8997f761aecb703304b3800ccf555c9f3dc64214b297fb1966a3b6d83")
	assert.Equal(t, want, EncodeSigned(signed))
}

func TestFieldLayout(t *testing.T) {
	u := &Unsigned{
		Value:    big.NewInt(0),
		GasPrice: big.NewInt(256),
		GasLimit: 0x0100,
		Nonce:    0,
		Data:     []byte{0x60, 0x80},
		ChainID:  5,
	}

	unsigned := UnsignedFields(u)
	require.Len(t, unsigned, 9)
	assert.Equal(t, [][]byte{
		{},           // nonce
		{0x01, 0x00}, // gas price
		{0x01, 0x00}, // gas limit
		{},           // creation
		{},           // value
		{0x60, 0x80},
		{0x05},
		{},
		{},
	}, unsigned)

	signed, err := WithSignature(u, &Signature{R: big.NewInt(0x0102), S: big.NewInt(3), YParity: Odd})
	require.NoError(t, err)
	fields := SignedFields(signed)
	require.Len(t, fields, 9)
	assert.Equal(t, []byte{46}, fields[6])
	assert.Equal(t, []byte{0x01, 0x02}, fields[7])
	assert.Equal(t, []byte{0x03}, fields[8])
}

func TestDeriveV(t *testing.T) {
	tests := []struct {
		parity  Parity
		chainID uint64
		want    int64
	}{
		{Even, 1, 35},
		{Odd, 1, 36},
		{Even, 5, 45},
		{Odd, 1337, 2710},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveV(tt.parity, tt.chainID).Int64(), "parity %s chain %d", tt.parity, tt.chainID)
	}
}

func TestRoundTrip(t *testing.T) {
	to := ethgo.HexToAddress("0x00000000000000000000000000000000000000ff")
	cases := map[string]*Unsigned{
		"transfer": eip155Tx(t),
		"call": {
			To:       &to,
			Value:    big.NewInt(0),
			Data:     bytes.Repeat([]byte{0xab}, 100),
			GasLimit: 1_000_000,
			GasPrice: big.NewInt(1),
			Nonce:    300,
			ChainID:  137,
		},
		"creation": {
			Value:    big.NewInt(5),
			Data:     []byte{0x60, 0x80, 0x60, 0x40},
			GasLimit: 500000,
			GasPrice: big.NewInt(7),
			Nonce:    1,
			ChainID:  1,
		},
	}

	for name, u := range cases {
		t.Run(name, func(t *testing.T) {
			sig := &Signature{
				R:       mustBig(t, "0xff00000000000000000000000000000000000000000000000000000000000001"),
				S:       big.NewInt(42),
				YParity: Odd,
			}
			signed, err := WithSignature(u, sig)
			require.NoError(t, err)

			decoded, err := Decode(EncodeSigned(signed))
			require.NoError(t, err)

			assert.Equal(t, u.Nonce, decoded.Nonce)
			assert.Equal(t, 0, u.GasPrice.Cmp(decoded.GasPrice))
			assert.Equal(t, u.GasLimit, decoded.GasLimit)
			assert.Equal(t, u.To, decoded.To)
			assert.Equal(t, 0, u.Value.Cmp(decoded.Value))
			assert.Equal(t, u.Data, decoded.Data)
			assert.Equal(t, u.ChainID, decoded.ChainID)
			assert.Equal(t, u.IsCreation(), decoded.IsCreation())
			assert.Equal(t, 0, signed.V.Cmp(decoded.V))
			assert.Equal(t, 0, sig.R.Cmp(decoded.R))
			assert.Equal(t, 0, sig.S.Cmp(decoded.S))
			assert.Equal(t, Odd, decoded.Parity())
		})
	}
}

func TestSignedParity(t *testing.T) {
	tests := []struct {
		v    *big.Int
		want Parity
	}{
		{nil, Even},
		{big.NewInt(27), Even},
		{big.NewInt(28), Odd},
		{big.NewInt(37), Even},
		{big.NewInt(38), Odd},
		{big.NewInt(2709), Even},
		{big.NewInt(2710), Odd},
		{big.NewInt(0), Even},
		{big.NewInt(1), Odd},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&Signed{V: tt.v}).Parity(), "v=%v", tt.v)
	}
}

func TestDecodePreReplayProtection(t *testing.T) {
	raw := RLPList([][]byte{
		{}, {0x01}, {0x52, 0x08}, make([]byte, 20), {}, {},
		{28}, {0x01}, {0x02},
	})
	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), decoded.ChainID)
	assert.Equal(t, Odd, decoded.Parity())
}

func TestDecodeRejectsUnsignedLayout(t *testing.T) {
	raw := RLPList([][]byte{{1}, {2}})
	_, err := Decode(raw)
	assert.ErrorIs(t, err, errNotLegacy)
}

func TestSignatureValidate(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	assert.ErrorIs(t, (*Signature)(nil).Validate(), ErrInvalidSignature)
	assert.ErrorIs(t, (&Signature{S: big.NewInt(1)}).Validate(), ErrInvalidSignature)
	assert.ErrorIs(t, (&Signature{R: tooBig, S: big.NewInt(1)}).Validate(), ErrInvalidSignature)
	assert.ErrorIs(t, (&Signature{R: big.NewInt(-1), S: big.NewInt(1)}).Validate(), ErrInvalidSignature)
	assert.ErrorIs(t, (&Signature{R: big.NewInt(1), S: big.NewInt(1), YParity: 2}).Validate(), ErrInvalidSignature)
	assert.NoError(t, (&Signature{R: big.NewInt(1), S: big.NewInt(1), YParity: Odd}).Validate())
}
