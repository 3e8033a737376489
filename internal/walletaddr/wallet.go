package walletaddr

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Wallet is the gateway's view of the wallet/signer collaborator: enough
// to know which address mutating operations act as. Transaction signing
// itself belongs to the backend client, not this package.
type Wallet interface {
	Address() EVMAddress
}

type staticWallet struct {
	address EVMAddress
}

func (w staticWallet) Address() EVMAddress { return w.address }

// NewWalletFromPrivateKey derives the wallet's EVM address from a
// hex-encoded secp256k1 private key.
func NewWalletFromPrivateKey(hexKey string) (Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("walletaddr: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("walletaddr: private key must be 32 bytes, got %d", len(keyBytes))
	}

	priv := new(big.Int).SetBytes(keyBytes)
	if priv.Sign() == 0 || priv.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("walletaddr: private key out of range")
	}

	x, y := publicKeyFromPrivate(priv)
	pub := make([]byte, 64)
	x.FillBytes(pub[:32])
	y.FillBytes(pub[32:])

	digest := keccak256(pub)
	var addr EVMAddress
	copy(addr[:], digest[len(digest)-EVMAddressLen:])

	return staticWallet{address: addr}, nil
}

// NewWalletFromAddress builds a wallet directly from a known EVM address,
// useful for read-write test fixtures where no real key material exists.
func NewWalletFromAddress(addr EVMAddress) Wallet {
	return staticWallet{address: addr}
}
