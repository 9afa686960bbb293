// Package explorer implements the block explorer controller: fragment
// routing, multi-network resolution, the live feed cache and the formatting
// used by every renderer.
package explorer

import (
	"fmt"
	"strings"
)

// Network is one supported blockchain.
type Network string

const (
	BTC  Network = "btc"
	BCH  Network = "bch"
	LTC  Network = "ltc"
	DOGE Network = "doge"
	DASH Network = "dash"
)

// Networks is the fixed probe order used by every cross-network scan.
var Networks = []Network{BTC, BCH, LTC, DOGE, DASH}

// ParseNetwork accepts a network id in any case.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Networks {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown network %q", s)
}

// Upper returns the display ticker, e.g. "BTC".
func (n Network) Upper() string {
	return strings.ToUpper(string(n))
}

func (n Network) String() string {
	return string(n)
}

// probeOrder returns the fixed order with first moved to the front. An
// empty first returns the fixed order.
func probeOrder(first Network) []Network {
	if first == "" {
		return Networks
	}
	order := make([]Network, 0, len(Networks))
	order = append(order, first)
	for _, n := range Networks {
		if n != first {
			order = append(order, n)
		}
	}
	return order
}
