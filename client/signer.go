package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/umbracle/ethgo"

	"github.com/distribworks/xk6-ethtx/transaction"
)

// SignerKind tells which party produces signatures.
type SignerKind int

const (
	// Remote delegates signing to the node's account.
	Remote SignerKind = iota
	// Local signs with a caller supplied function.
	Local
)

func (k SignerKind) String() string {
	switch k {
	case Remote:
		return "remote"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("SignerKind(%d)", int(k))
	}
}

// SignFunc signs payload, which is the canonical unsigned transaction or a
// prefixed message. Hashing the payload is up to the function.
type SignFunc func(payload []byte) (*transaction.Signature, error)

// Signer is the signing strategy of a Client, fixed at construction.
type Signer struct {
	kind SignerKind
	sign SignFunc
}

// RemoteSigner signs with eth_signTransaction and eth_sign.
func RemoteSigner() Signer {
	return Signer{kind: Remote}
}

// LocalSigner signs with fn.
func LocalSigner(fn SignFunc) Signer {
	return Signer{kind: Local, sign: fn}
}

// Kind returns the strategy.
func (s Signer) Kind() SignerKind {
	return s.kind
}

// Key is a private key able to sign a 32-byte digest. The signature is
// r || s || parity; ethgo's wallet.Key satisfies it.
type Key interface {
	Address() ethgo.Address
	Sign(hash []byte) ([]byte, error)
}

// KeySignFunc returns a SignFunc signing the keccak256 digest of the payload
// with key.
func KeySignFunc(key Key) SignFunc {
	return func(payload []byte) (*transaction.Signature, error) {
		sig, err := key.Sign(transaction.Keccak256(payload))
		if err != nil {
			return nil, err
		}
		return transaction.ParseSignature(sig)
	}
}

var errNoSignFunc = errors.New("local signer has no sign function")

// SignTransaction returns the broadcast-ready encoding of tx.
func (c *Client) SignTransaction(ctx context.Context, tx *transaction.Unsigned) ([]byte, error) {
	switch c.signer.kind {
	case Remote:
		res, err := ethSignTransaction.Invoke(ctx, c.rpc, signArgs(tx))
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
		if len(res.Raw) == 0 {
			return nil, errors.New("node returned an empty signed transaction")
		}
		return res.Raw, nil
	case Local:
		if c.signer.sign == nil {
			return nil, errNoSignFunc
		}
		sig, err := c.signer.sign(transaction.EncodeUnsigned(tx))
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
		signed, err := transaction.WithSignature(tx, sig)
		if err != nil {
			return nil, err
		}
		return transaction.EncodeSigned(signed), nil
	default:
		return nil, fmt.Errorf("unknown signer %s", c.signer.kind)
	}
}

// SignMessage signs msg as a personal message and returns r || s || v.
// The remote variant signs with the sender's account through eth_sign.
func (c *Client) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	switch c.signer.kind {
	case Remote:
		from, err := c.addressProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sender: %w", err)
		}
		if from == nil {
			from = &ethgo.Address{}
		}
		return ethSign.Invoke(ctx, c.rpc, messageQuery{addr: *from, msg: msg})
	case Local:
		if c.signer.sign == nil {
			return nil, errNoSignFunc
		}
		sig, err := c.signer.sign(transaction.PrefixMessage(msg))
		if err != nil {
			return nil, fmt.Errorf("failed to sign message: %w", err)
		}
		return transaction.EncodeMessageSignature(sig)
	default:
		return nil, fmt.Errorf("unknown signer %s", c.signer.kind)
	}
}
