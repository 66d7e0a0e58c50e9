package payment

import "fmt"

// Method identifies which acceptance lifecycle settled a payment.
type Method string

const (
	MethodLightning Method = "lightning"
	MethodBitcoin   Method = "bitcoin"
	MethodUSDT      Method = "usdt"
)

func NewMethod(method string) (Method, error) {
	m := Method(method)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid payment method: %s", method)
	}
	return m, nil
}

func (m Method) IsValid() bool {
	switch m {
	case MethodLightning, MethodBitcoin, MethodUSDT:
		return true
	default:
		return false
	}
}

// IsOnChain reports whether settlement happens on a blockchain rather
// than over Lightning. Confirmation counts only mean something on-chain.
func (m Method) IsOnChain() bool {
	return m == MethodBitcoin || m == MethodUSDT
}

func (m Method) String() string {
	return string(m)
}
