package ethsig

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC-1271 magic value returned by isValidSignature on success.
var erc1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

const erc1271ABIJSON = `[{"name":"isValidSignature","type":"function","stateMutability":"view","inputs":[{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],"outputs":[{"name":"","type":"bytes4"}]}]`

var erc1271ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc1271ABIJSON))
	if err != nil {
		panic("ethsig: invalid ERC-1271 ABI: " + err.Error())
	}
	erc1271ABI = parsed
}

// ChainBackend is the minimal chain read surface needed for smart-contract
// wallet checks. *ethclient.Client satisfies it.
type ChainBackend interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Verifier proves that a signature over a 32-byte digest was produced by the
// holder of an address, whether that address is a plain key or a contract
// wallet.
type Verifier interface {
	Verify(ctx context.Context, signer common.Address, hash []byte, sig []byte) (bool, error)
}

// DualVerifier verifies EOA signatures by ECDSA recovery and falls back to an
// on-chain ERC-1271 isValidSignature call for addresses that carry code.
type DualVerifier struct {
	backend ChainBackend
}

// NewDualVerifier creates a verifier. A nil backend disables contract-wallet
// verification; only EOA recovery is attempted.
func NewDualVerifier(backend ChainBackend) *DualVerifier {
	return &DualVerifier{backend: backend}
}

func (v *DualVerifier) Verify(ctx context.Context, signer common.Address, hash []byte, sig []byte) (bool, error) {
	if len(hash) != 32 || len(sig) == 0 {
		return false, nil
	}

	if len(sig) == 65 {
		if recoverMatches(signer, hash, sig) {
			return true, nil
		}
	}

	// Recovery failed or the signature is not a standard 65-byte ECDSA blob;
	// if the signer is a contract, ask it directly.
	if v.backend == nil {
		return false, nil
	}
	code, err := v.backend.CodeAt(ctx, signer, nil)
	if err != nil {
		return false, err
	}
	if len(code) == 0 {
		return false, nil
	}
	return v.callIsValidSignature(ctx, signer, hash, sig)
}

func recoverMatches(signer common.Address, hash, sig []byte) bool {
	normalized := make([]byte, 65)
	copy(normalized, sig)
	// Wallets return v as 27/28; crypto.SigToPub wants 0/1.
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == signer
}

func (v *DualVerifier) callIsValidSignature(ctx context.Context, signer common.Address, hash, sig []byte) (bool, error) {
	var digest [32]byte
	copy(digest[:], hash)

	data, err := erc1271ABI.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, err
	}

	ret, err := v.backend.CallContract(ctx, ethereum.CallMsg{To: &signer, Data: data}, nil)
	if err != nil {
		// Wallets that do not implement ERC-1271 revert; treat as invalid.
		return false, nil
	}
	if len(ret) < 4 {
		return false, nil
	}
	var got [4]byte
	copy(got[:], ret[:4])
	return got == erc1271MagicValue, nil
}
