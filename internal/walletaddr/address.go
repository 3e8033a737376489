// Package walletaddr derives the addresses the gateway reasons about: the
// 20-byte Ethereum address embedded in a bucket name, and the FVM
// delegated (protocol 4) address the backend actor API expects in its
// place. Transaction signing is the backend's job (an external
// collaborator); this package loads a private key only to derive its
// address, and never signs anything.
package walletaddr

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// base32Lower is RFC 4648 base32 with a lowercase alphabet, the encoding
// FVM addresses use for their payload+checksum suffix.
var base32Lower = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// EVMAddressLen is the byte length of an Ethereum account address.
const EVMAddressLen = 20

// EVMAddress is a 20-byte Ethereum-style address, as found in the owner
// component of a bucket name.
type EVMAddress [EVMAddressLen]byte

// ParseEVMAddress parses a hex string with or without a leading "0x" into
// a 20-byte address.
func ParseEVMAddress(s string) (EVMAddress, error) {
	var out EVMAddress
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != EVMAddressLen*2 {
		return out, fmt.Errorf("walletaddr: address %q is not %d hex bytes", s, EVMAddressLen)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("walletaddr: address %q is not valid hex: %w", s, err)
	}
	copy(out[:], b)
	return out, nil
}

// String renders the address as a lowercase "0x"-prefixed hex string, the
// canonical form used in bucket names.
func (a EVMAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// eamActorNamespace is the FVM actor ID of the Ethereum Address Manager
// singleton, whose delegated addresses wrap arbitrary EVM addresses.
const eamActorNamespace = 10

// Network selects the network prefix used when rendering a delegated
// address ("f" for mainnet, "t" for every test network).
type Network int

const (
	NetworkMainnet Network = iota
	NetworkTestnet
)

func (n Network) prefix() byte {
	if n == NetworkMainnet {
		return 'f'
	}
	return 't'
}

// Address is an FVM protocol-4 (delegated) address: a namespace actor ID
// plus an arbitrary payload, here always a 20-byte EVM address. It is the
// address format bucket owners and bucket actors are identified by on the
// backend.
type Address struct {
	network Network
	payload EVMAddress
}

// FromEVM converts a 20-byte Ethereum address into the backend's
// delegated address format.
func FromEVM(network Network, evm EVMAddress) Address {
	return Address{network: network, payload: evm}
}

// EVM returns the underlying 20-byte Ethereum address.
func (a Address) EVM() EVMAddress { return a.payload }

// leb128 returns the unsigned LEB128 encoding of v.
func leb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

const delegatedProtocol = 4

// String renders the canonical textual delegated address,
// <prefix>4<namespace>f<base32(payload||checksum)> (e.g. "t410f…"), all
// lowercase, no padding, matching the real FVM address spec.
func (a Address) String() string {
	ns := leb128(eamActorNamespace)

	checksumInput := make([]byte, 0, 1+len(ns)+EVMAddressLen)
	checksumInput = append(checksumInput, delegatedProtocol)
	checksumInput = append(checksumInput, ns...)
	checksumInput = append(checksumInput, a.payload[:]...)

	h, err := blake2b.New(4, nil)
	if err != nil {
		panic(err) // only fails for invalid key/size, both fixed here
	}
	h.Write(checksumInput)
	checksum := h.Sum(nil)

	body := make([]byte, 0, EVMAddressLen+len(checksum))
	body = append(body, a.payload[:]...)
	body = append(body, checksum...)

	encoded := base32Lower.EncodeToString(body)
	encoded = strings.TrimRight(encoded, "=")

	return fmt.Sprintf("%c%d%df%s", a.network.prefix(), delegatedProtocol, eamActorNamespace, encoded)
}

// ParseAddress parses the textual delegated-address form produced by
// Address.String, verifying the embedded checksum.
func ParseAddress(s string) (Address, error) {
	if len(s) < 4 {
		return Address{}, fmt.Errorf("walletaddr: address %q too short", s)
	}
	var network Network
	switch s[0] {
	case 'f':
		network = NetworkMainnet
	case 't':
		network = NetworkTestnet
	default:
		return Address{}, fmt.Errorf("walletaddr: address %q has unknown network prefix %q", s, s[0])
	}
	if s[1] != '0'+delegatedProtocol {
		return Address{}, fmt.Errorf("walletaddr: address %q is not a delegated (protocol 4) address", s)
	}
	rest := s[2:]
	sep := strings.IndexByte(rest, 'f')
	if sep < 0 {
		return Address{}, fmt.Errorf("walletaddr: address %q has no namespace separator", s)
	}
	if rest[:sep] != fmt.Sprintf("%d", eamActorNamespace) {
		return Address{}, fmt.Errorf("walletaddr: address %q is not in the EAM namespace", s)
	}

	body, err := base32Lower.DecodeString(rest[sep+1:])
	if err != nil {
		return Address{}, fmt.Errorf("walletaddr: address %q has invalid base32 payload: %w", s, err)
	}
	if len(body) != EVMAddressLen+4 {
		return Address{}, fmt.Errorf("walletaddr: address %q payload is %d bytes, want %d", s, len(body), EVMAddressLen+4)
	}

	var payload EVMAddress
	copy(payload[:], body[:EVMAddressLen])

	addr := Address{network: network, payload: payload}
	if addr.String() != s {
		return Address{}, fmt.Errorf("walletaddr: address %q fails checksum verification", s)
	}
	return addr, nil
}

// RandomPlaceholder generates a locally-unique, non-cryptographic address
// payload for test fixtures and the in-process reference backend; it is
// never used for a real on-chain actor.
func RandomPlaceholder() EVMAddress {
	var out EVMAddress
	_, _ = rand.Read(out[:])
	return out
}

// keccak256 is exposed for wallet.go's address-derivation use.
func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
