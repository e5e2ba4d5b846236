package ethereum

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/umbracle/ethgo/wallet"
	"go.k6.io/k6/js/modules"

	"github.com/distribworks/xk6-ethtx/client"
	"github.com/distribworks/xk6-ethtx/transaction"
)

func init() {
	modules.Register("k6/x/ethereum/wallet", &WalletRoot{})
}

// WalletRoot is the key management module.
type WalletRoot struct{}

// NewModuleInstance implements the modules.Module interface.
func (*WalletRoot) NewModuleInstance(modules.VU) modules.Instance {
	return &Wallet{}
}

type Wallet struct{}

// Exports implements the modules.Instance interface.
func (w *Wallet) Exports() modules.Exports {
	return modules.Exports{Named: map[string]interface{}{
		"generateKey": w.GenerateKey,
		"signMessage": w.SignMessage,
	}}
}

type Key struct {
	PrivateKey string `js:"privateKey"`
	Address    string `js:"address"`
}

// GenerateKey creates a random key
func (w *Wallet) GenerateKey() (*Key, error) {
	k, err := wallet.GenerateKey()
	if err != nil {
		return nil, err
	}
	pk, err := k.MarshallPrivateKey()
	if err != nil {
		return nil, err
	}

	return &Key{
		PrivateKey: hex.EncodeToString(pk),
		Address:    k.Address().String(),
	}, nil
}

// SignMessage signs message as a personal message with privateKey.
func (w *Wallet) SignMessage(privateKey, message string) (string, error) {
	k, err := parsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	sig, err := client.KeySignFunc(k)(transaction.PrefixMessage([]byte(message)))
	if err != nil {
		return "", err
	}
	out, err := transaction.EncodeMessageSignature(sig)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(out), nil
}
