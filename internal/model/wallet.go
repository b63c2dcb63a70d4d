package model

import (
	"errors"
	"strings"

	"github.com/luxfi/geth/common"
)

// ErrInvalidWallet is returned for malformed or zero wallet addresses.
var ErrInvalidWallet = errors.New("invalid wallet address")

// ParseWallet validates a hex EVM address and returns it in canonical form.
// The zero address is rejected.
func ParseWallet(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, ErrInvalidWallet
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, ErrInvalidWallet
	}
	return addr, nil
}
