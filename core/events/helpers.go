package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"coverpool/crypto"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func zeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}

func formatAddress(addr [20]byte) string {
	if zeroAddress(addr) {
		return ""
	}
	return crypto.FromRaw(crypto.AccountPrefix, addr).String()
}

func formatProtocol(id [32]byte) string {
	return common.Hash(id).Hex()
}
