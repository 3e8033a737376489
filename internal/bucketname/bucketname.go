// Package bucketname parses and validates the gateway's virtual-hosted
// bucket naming scheme: <owner-eth-addr>.<alias>.
package bucketname

import (
	"fmt"
	"strings"

	"github.com/basingate/basingate/internal/walletaddr"
)

// Name is a parsed bucket name: the 20-byte owner address embedded as the
// first dot-separated component, and the alias (everything after the
// first dot, which may itself contain dots).
type Name struct {
	owner walletaddr.EVMAddress
	alias string
}

// Owner returns the bucket owner's Ethereum address.
func (n Name) Owner() walletaddr.EVMAddress { return n.owner }

// Alias returns the bucket's alias (the name the caller chose, without
// the owner prefix).
func (n Name) Alias() string { return n.alias }

// String reconstructs the full "<owner>.<alias>" bucket name.
func (n Name) String() string {
	return n.owner.String() + "." + n.alias
}

// ErrInvalid is returned (wrapped with context) whenever a bucket name or
// alias fails validation.
type ErrInvalid struct {
	reason string
}

func (e *ErrInvalid) Error() string { return "bucketname: " + e.reason }

func invalid(format string, args ...any) error {
	return &ErrInvalid{reason: fmt.Sprintf(format, args...)}
}

// Parse splits a bucket name of the form "<owner-eth-addr>.<alias>" on the
// first dot, parses the owner address, and validates the alias grammar.
func Parse(bucket string) (Name, error) {
	idx := strings.IndexByte(bucket, '.')
	if idx < 0 {
		return Name{}, invalid("bucket name %q has no owner separator", bucket)
	}
	ownerPart, alias := bucket[:idx], bucket[idx+1:]

	owner, err := walletaddr.ParseEVMAddress(ownerPart)
	if err != nil {
		return Name{}, invalid("bucket name %q has an invalid owner address: %v", bucket, err)
	}

	if err := CheckAlias(alias); err != nil {
		return Name{}, err
	}

	return Name{owner: owner, alias: alias}, nil
}

// New builds a Name from an already-known owner and alias, validating the
// alias grammar.
func New(owner walletaddr.EVMAddress, alias string) (Name, error) {
	if err := CheckAlias(alias); err != nil {
		return Name{}, err
	}
	return Name{owner: owner, alias: alias}, nil
}

// CheckAlias validates a bucket alias (the portion of the bucket name
// after the owner prefix) against the grammar:
//
//   - length between 3 and 20 bytes, inclusive
//   - every byte is an ASCII lowercase letter, digit, '.', or '-'
//   - the first and last byte are a lowercase letter or digit
//   - the alias never contains ".."
func CheckAlias(alias string) error {
	if len(alias) < 3 || len(alias) > 20 {
		return invalid("alias %q must be between 3 and 20 bytes, got %d", alias, len(alias))
	}
	if strings.Contains(alias, "..") {
		return invalid("alias %q must not contain \"..\"", alias)
	}
	for i := 0; i < len(alias); i++ {
		if !isAliasByte(alias[i]) {
			return invalid("alias %q contains an invalid character %q", alias, alias[i])
		}
	}
	if !isAlnumLower(alias[0]) {
		return invalid("alias %q must start with a lowercase letter or digit", alias)
	}
	if !isAlnumLower(alias[len(alias)-1]) {
		return invalid("alias %q must end with a lowercase letter or digit", alias)
	}
	return nil
}

func isAlnumLower(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func isAliasByte(b byte) bool {
	return isAlnumLower(b) || b == '.' || b == '-'
}
