package payment

import (
	"fmt"
	"regexp"
)

// Network is the blockchain a USDT payment settles on.
type Network string

const (
	// NetworkTRC is the Tron TRC-20 network.
	NetworkTRC Network = "trc"
	// NetworkPOL is the Polygon (PoS) network.
	NetworkPOL Network = "pol"
	// NetworkETH is Ethereum mainnet.
	NetworkETH Network = "eth"
)

func NewNetwork(network string) (Network, error) {
	n := Network(network)
	if !n.IsValid() {
		return "", fmt.Errorf("invalid USDT network: %s", network)
	}
	return n, nil
}

func (n Network) IsValid() bool {
	switch n {
	case NetworkTRC, NetworkPOL, NetworkETH:
		return true
	default:
		return false
	}
}

func (n Network) String() string {
	return string(n)
}

// RequiredConfirmations returns the finality threshold conventionally
// used for the network.
func (n Network) RequiredConfirmations() int {
	switch n {
	case NetworkTRC:
		return 19
	case NetworkPOL:
		return 12
	case NetworkETH:
		return 6
	default:
		return 0
	}
}

// EstimatedFee returns a rough sender-side transfer cost in USDT,
// shown on the invoice so the customer can pick the cheapest network.
func (n Network) EstimatedFee() float64 {
	switch n {
	case NetworkTRC:
		return 1.0
	case NetworkPOL:
		return 0.1
	case NetworkETH:
		return 5.0
	default:
		return 0
	}
}

// USDTContractAddress returns the USDT token contract on the network.
func (n Network) USDTContractAddress() string {
	switch n {
	case NetworkTRC:
		return "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	case NetworkPOL:
		return "0xc2132D05D31c914a87C6611C10748AEb04B58e8F"
	case NetworkETH:
		return "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	default:
		return ""
	}
}

var (
	// EVM address: 0x followed by 40 hex characters
	evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	// Tron address: T followed by 33 base58 characters
	tronAddressPattern = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
)

// ValidateAddress validates a receiving address for this network.
func (n Network) ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch n {
	case NetworkTRC:
		if !tronAddressPattern.MatchString(address) {
			return fmt.Errorf("invalid Tron address format: must start with T followed by 33 base58 characters")
		}
		return nil
	case NetworkPOL, NetworkETH:
		if !evmAddressPattern.MatchString(address) {
			return fmt.Errorf("invalid %s address format: must be 0x followed by 40 hex characters", n)
		}
		return nil
	default:
		return fmt.Errorf("cannot validate address for unknown network: %s", n)
	}
}

// IsValidAddress returns true if the address is valid for this network.
func (n Network) IsValidAddress(address string) bool {
	return n.ValidateAddress(address) == nil
}
