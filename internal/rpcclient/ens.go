package rpcclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ensRegistry is the ENS Registry address, fixed across mainnet.
var ensRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

var resolverMethod, nameMethod, addrMethod abi.Method

func init() {
	resolverMethod = mustMethod("resolver", "bytes32")
	nameMethod = mustMethod("name", "bytes32")
	addrMethod = mustMethod("addr", "bytes32")
}

func mustMethod(name string, inputType string) abi.Method {
	ty, err := abi.NewType(inputType, "", nil)
	if err != nil {
		panic(err)
	}
	outTy, err := abi.NewType(methodOutputType(name), "", nil)
	if err != nil {
		panic(err)
	}
	return abi.NewMethod(name, name, abi.Function, "view", false, false,
		abi.Arguments{{Name: "node", Type: ty}},
		abi.Arguments{{Name: "", Type: outTy}})
}

func methodOutputType(name string) string {
	if name == "name" {
		return "string"
	}
	return "address"
}

// ResolveENSName reverse-resolves address to its primary ENS name. ENS is
// only registered on mainnet, so callers on other chains get ("", nil):
// hash the "<addr>.addr.reverse" node, ask the registry for a resolver,
// then ask the resolver for the name.
func (c *Client) ResolveENSName(ctx context.Context, address common.Address) (string, error) {
	if c.network.ID != 1 {
		return "", nil
	}

	node := reverseNode(address)

	resolverData, err := resolverMethod.Inputs.Pack(node)
	if err != nil {
		return "", fmt.Errorf("rpcclient: packing resolver() call: %w", err)
	}
	resolverResult, err := c.EthCall(ctx, ensRegistry, append(resolverMethod.ID, resolverData...))
	if err != nil {
		return "", fmt.Errorf("rpcclient: ens resolver() lookup: %w", err)
	}
	if len(resolverResult) < 32 {
		return "", nil
	}
	resolverAddr := common.BytesToAddress(resolverResult[12:32])
	if resolverAddr == (common.Address{}) {
		return "", nil
	}

	nameData, err := nameMethod.Inputs.Pack(node)
	if err != nil {
		return "", fmt.Errorf("rpcclient: packing name() call: %w", err)
	}
	nameResult, err := c.EthCall(ctx, resolverAddr, append(nameMethod.ID, nameData...))
	if err != nil {
		return "", fmt.Errorf("rpcclient: ens name() lookup: %w", err)
	}

	values, err := nameMethod.Outputs.Unpack(nameResult)
	if err != nil || len(values) == 0 {
		return "", nil
	}
	name, _ := values[0].(string)
	return name, nil
}

// VerifyENSForward checks that name's forward resolution (addr()) matches
// address, guarding against a reverse record that was never confirmed.
func (c *Client) VerifyENSForward(ctx context.Context, name string, address common.Address) (bool, error) {
	node := namehash(name)
	data, err := addrMethod.Inputs.Pack(node)
	if err != nil {
		return false, fmt.Errorf("rpcclient: packing addr() call: %w", err)
	}

	resolverData, err := resolverMethod.Inputs.Pack(node)
	if err != nil {
		return false, err
	}
	resolverResult, err := c.EthCall(ctx, ensRegistry, append(resolverMethod.ID, resolverData...))
	if err != nil || len(resolverResult) < 32 {
		return false, err
	}
	resolverAddr := common.BytesToAddress(resolverResult[12:32])
	if resolverAddr == (common.Address{}) {
		return false, nil
	}

	result, err := c.EthCall(ctx, resolverAddr, append(addrMethod.ID, data...))
	if err != nil || len(result) < 32 {
		return false, err
	}
	return common.BytesToAddress(result[12:32]) == address, nil
}

func reverseNode(address common.Address) [32]byte {
	hexAddr := strings.ToLower(strings.TrimPrefix(address.Hex(), "0x"))
	return namehash(hexAddr + ".addr.reverse")
}

// namehash implements the ENS namehash algorithm (EIP-137).
func namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := sha3.NewLegacyKeccak256()
		labelHash.Write([]byte(labels[i]))

		nodeHash := sha3.NewLegacyKeccak256()
		nodeHash.Write(node[:])
		nodeHash.Write(labelHash.Sum(nil))
		copy(node[:], nodeHash.Sum(nil))
	}
	return node
}
