package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// DecodePubkey decodes a base58 account address into its 32 raw bytes.
func DecodePubkey(address string) ([]byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode base58 %q: %w", address, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("pubkey %q: expected 32 bytes, got %d", address, len(raw))
	}
	return raw, nil
}

// IsOnCurve reports whether address is a point on the ed25519 curve.
// Program-derived addresses are deliberately off-curve, so this is false for PDAs.
func IsOnCurve(address string) bool {
	raw, err := DecodePubkey(address)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// IsPlainWallet reports whether an account looks like a user wallet: owned by the
// System Program, not executable, on curve, and not the incinerator.
func IsPlainWallet(address string, info *AccountInfo) bool {
	if info == nil || address == IncineratorAddress {
		return false
	}
	if info.Owner != SystemProgramID || info.Executable {
		return false
	}
	return IsOnCurve(address)
}
