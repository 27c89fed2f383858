package x402

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// usdcDecimals is the on-chain precision of USDC.
var usdcAtomicScale = big.NewRat(1_000_000, 1)

// usdcExtra carries the EIP-3009 domain info clients need to build a
// transferWithAuthorization signature for USDC.
var usdcExtra = json.RawMessage(`{"name":"USDC","version":"2"}`)

// AtomicUSDC converts a decimal USDC amount string into atomic units
// (6 decimals). Amounts with sub-atomic precision are rejected.
func AtomicUSDC(amount string) (string, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return "", fmt.Errorf("invalid usdc amount %q", amount)
	}
	if r.Sign() < 0 {
		return "", fmt.Errorf("negative usdc amount %q", amount)
	}
	scaled := new(big.Rat).Mul(r, usdcAtomicScale)
	if !scaled.IsInt() {
		return "", fmt.Errorf("usdc amount %q has more than 6 decimals", amount)
	}
	return scaled.Num().String(), nil
}

// RequirementsConfig is the chain-level context a requirement builder needs.
type RequirementsConfig struct {
	Network           string
	Asset             string
	MaxTimeoutSeconds int
}

// BuildRequirements assembles the payment requirements for one paid resource.
func BuildRequirements(cfg RequirementsConfig, resource, description, payTo, priceUSDC string) (PaymentRequirements, error) {
	amount, err := AtomicUSDC(priceUSDC)
	if err != nil {
		return PaymentRequirements{}, err
	}
	timeout := cfg.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	return PaymentRequirements{
		Scheme:            "exact",
		Network:           cfg.Network,
		MaxAmountRequired: amount,
		Resource:          resource,
		Description:       description,
		MimeType:          "application/json",
		PayTo:             payTo,
		MaxTimeoutSeconds: timeout,
		Asset:             cfg.Asset,
		Extra:             usdcExtra,
	}, nil
}
