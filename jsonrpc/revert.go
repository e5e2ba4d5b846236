package jsonrpc

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	contractErrorPrefix = "Contract Error: "

	// errorSelector is the 4-byte selector of Error(string).
	errorSelector = "08c379a0"

	ganacheRevertPrefix = "Reverted "
	textRevertPrefix    = "revert: "
)

// NormalizeMessage returns a human readable message for a JSON-RPC error.
// Revert payloads carried in data are decoded; anything it cannot make sense
// of falls back to the node's message.
func NormalizeMessage(obj *ErrorObject) string {
	if obj == nil {
		return ""
	}

	var data string
	if len(obj.Data) == 0 || json.Unmarshal(obj.Data, &data) != nil {
		return obj.Message
	}

	if reason, ok := decodeErrorString(data); ok {
		return contractErrorPrefix + reason
	}
	if strings.HasPrefix(data, textRevertPrefix) {
		return contractErrorPrefix + strings.TrimPrefix(data, textRevertPrefix)
	}
	return obj.Message
}

// decodeErrorString decodes hex encoded Error(string) revert data, with or
// without the "Reverted " and "0x" prefixes.
func decodeErrorString(data string) (string, bool) {
	data = strings.TrimPrefix(data, ganacheRevertPrefix)
	data = strings.TrimPrefix(data, "0x")
	if !strings.HasPrefix(strings.ToLower(data), errorSelector) {
		return "", false
	}

	raw, err := hex.DecodeString(data)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || !utf8.ValidString(reason) {
		return "", false
	}
	return reason, true
}
