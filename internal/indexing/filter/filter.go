// Package filter narrows event streams to a set of participant addresses.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// ErrInvalidAddress is returned for values that are not 20-byte hex addresses.
var ErrInvalidAddress = errors.New("invalid address")

// Filter defines the interface for address filtering
type Filter interface {
	// Contains checks if an address is tracked
	Contains(address string) bool

	// Add adds an address to the filter
	Add(address string) error

	// AddBatch adds multiple addresses
	AddBatch(addresses []string) error

	// Remove removes an address from the filter
	Remove(address string) error

	// Size returns the number of tracked addresses
	Size() int
}

// Match reports whether ev involves a tracked address. An empty filter matches everything.
func Match(f Filter, ev domain.DomainEvent) bool {
	if f == nil || f.Size() == 0 {
		return true
	}
	for _, addr := range ev.Participants() {
		if f.Contains(addr) {
			return true
		}
	}
	return false
}

// Select returns the events of batch that match f, preserving order.
func Select(f Filter, batch []domain.DomainEvent) []domain.DomainEvent {
	if f == nil || f.Size() == 0 {
		return batch
	}
	out := batch[:0:0]
	for _, ev := range batch {
		if Match(f, ev) {
			out = append(out, ev)
		}
	}
	return out
}

// ParseAddresses splits comma separated values into normalized addresses.
func ParseAddresses(values []string) ([]string, error) {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			addr, err := normalize(part)
			if err != nil {
				return nil, err
			}
			out = append(out, addr)
		}
	}
	return out, nil
}

func normalize(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}
