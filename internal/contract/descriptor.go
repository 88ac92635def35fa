// Package contract describes the single contract the gateway talks to.
package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/contract-gateway/pkg/utils"
)

// Method names exposed by the contract.
const (
	MethodGetName    = "getName"
	MethodGetBalance = "getBalance"
	MethodUpdateName = "updateName"
	MethodStake      = "stake"
	MethodWithdraw   = "withdraw"
)

// Sepolia defaults the dApp was deployed with.
const (
	DefaultAddress     = "0x1fd3a9d39f946c55da34a87068c085847a6ff810"
	DefaultChainID     = 11155111
	DefaultNetworkName = "Sepolia Testnet"
	DefaultRPCURL      = "https://ethereum-sepolia.gateway.tatum.io"
)

//go:embed abi.json
var defaultABI []byte

// requiredMethods maps each method the gateway calls to its expected mutability.
var requiredMethods = map[string]string{
	MethodGetName:    "view",
	MethodGetBalance: "view",
	MethodUpdateName: "nonpayable",
	MethodStake:      "payable",
	MethodWithdraw:   "nonpayable",
}

// Network identifies the chain the contract lives on.
type Network struct {
	ChainID *big.Int
	Name    string
	RPCURL  string
}

// Descriptor is the immutable address + ABI + network triple shared by every call.
type Descriptor struct {
	address common.Address
	abi     abi.ABI
	network Network
}

// NewDescriptor parses the ABI and validates that it exposes the methods the gateway needs.
func NewDescriptor(address string, abiJSON io.Reader, network Network) (*Descriptor, error) {
	if !utils.IsValidAddress(address) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid contract address", address)
	}
	if network.ChainID == nil || network.ChainID.Sign() <= 0 {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Chain ID must be positive", "")
	}

	parsed, err := abi.JSON(abiJSON)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to parse contract ABI", err.Error())
	}

	for name, mutability := range requiredMethods {
		method, ok := parsed.Methods[name]
		if !ok {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Contract ABI is missing a method", name)
		}
		if method.StateMutability != mutability {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unexpected method mutability",
				fmt.Sprintf("%s is %s, expected %s", name, method.StateMutability, mutability))
		}
	}

	return &Descriptor{
		address: common.HexToAddress(address),
		abi:     parsed,
		network: Network{
			ChainID: new(big.Int).Set(network.ChainID),
			Name:    network.Name,
			RPCURL:  network.RPCURL,
		},
	}, nil
}

// Default returns the descriptor of the deployed Sepolia contract.
func Default() *Descriptor {
	d, err := NewDescriptor(DefaultAddress, bytes.NewReader(defaultABI), Network{
		ChainID: big.NewInt(DefaultChainID),
		Name:    DefaultNetworkName,
		RPCURL:  DefaultRPCURL,
	})
	if err != nil {
		panic(fmt.Sprintf("embedded contract descriptor is invalid: %v", err))
	}
	return d
}

// DefaultABI returns a copy of the embedded ABI JSON.
func DefaultABI() []byte {
	return append([]byte(nil), defaultABI...)
}

// LoadABI reads an ABI from disk. Both a bare ABI array and a Hardhat/Foundry
// artifact with an "abi" field are accepted.
func LoadABI(path string) (io.Reader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to read ABI file", err.Error())
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(trimmed, &artifact); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to decode ABI artifact", err.Error())
		}
		if len(artifact.ABI) == 0 {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "ABI artifact has no abi field", path)
		}
		return bytes.NewReader(artifact.ABI), nil
	}
	return bytes.NewReader(trimmed), nil
}

// Address returns the contract address.
func (d *Descriptor) Address() common.Address {
	return d.address
}

// Network returns a copy of the network parameters.
func (d *Descriptor) Network() Network {
	n := d.network
	n.ChainID = new(big.Int).Set(d.network.ChainID)
	return n
}

// ChainID returns a copy of the chain id.
func (d *Descriptor) ChainID() *big.Int {
	return new(big.Int).Set(d.network.ChainID)
}

// Pack encodes call data for method.
func (d *Descriptor) Pack(method string, args ...interface{}) ([]byte, error) {
	return d.abi.Pack(method, args...)
}

// Unpack decodes the return data of method.
func (d *Descriptor) Unpack(method string, data []byte) ([]interface{}, error) {
	return d.abi.Unpack(method, data)
}

// Method looks up a method by name.
func (d *Descriptor) Method(name string) (abi.Method, bool) {
	m, ok := d.abi.Methods[name]
	return m, ok
}

// MethodByCallData resolves the method a calldata payload targets.
func (d *Descriptor) MethodByCallData(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	return d.abi.MethodById(data[:4])
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s@%s(%s)", d.address.Hex(), strings.ToLower(d.network.Name), d.network.ChainID)
}
