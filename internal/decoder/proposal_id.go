package decoder

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// proposalDetailsABI matches OpenZeppelin Governor's proposalDetails(uint256)
// accessor, added in Governor v4.9 to recover a proposal's action list
// from its id without re-supplying the describe() call.
const proposalDetailsABI = `[{"type":"function","name":"proposalDetails","stateMutability":"view","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[
	{"name":"targets","type":"address[]"},
	{"name":"values","type":"uint256[]"},
	{"name":"calldatas","type":"bytes[]"},
	{"name":"descriptionHash","type":"bytes32"}
]}]`

// DecodeProposalByID looks up a proposal's action list on-chain via the
// governor's proposalDetails(id) accessor, then runs the same
// DecodeProposal path as the other two input forms. A revert is reported
// as ChainRevertError naming the id; any other RPC failure is wrapped as
// a TransientNetworkError, since the caller supplied a concrete
// governor/chain and retrying is meaningful.
func (d *Decoder) DecodeProposalByID(ctx context.Context, chainID int64, governor string, proposalID *big.Int, opts models.DecodeOptions) (*models.Proposal, error) {
	client, ok := d.chainRPC[chainID]
	if !ok || client == nil || !client.HasRPC() {
		return nil, &InputError{Reason: fmt.Sprintf("no RPC configured for chain %d", chainID)}
	}

	iface, err := codec.NewInterface(proposalDetailsABI)
	if err != nil {
		return nil, fmt.Errorf("decoder: building proposalDetails interface: %w", err)
	}
	data, err := codec.EncodeCall(iface, "proposalDetails", proposalID)
	if err != nil {
		return nil, fmt.Errorf("decoder: encoding proposalDetails(%s): %w", proposalID, err)
	}

	result, err := client.EthCall(ctx, common.HexToAddress(governor), data)
	if err != nil {
		if isRevert(err) {
			return nil, &ChainRevertError{ProposalID: proposalID.String(), Err: err}
		}
		return nil, &TransientNetworkError{Op: "proposalDetails", Err: err}
	}
	if len(result) == 0 {
		return nil, &ChainRevertError{ProposalID: proposalID.String(), Err: fmt.Errorf("empty return data")}
	}

	method, err := iface.ABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("decoder: locating proposalDetails method: %w", err)
	}
	values, err := method.Outputs.Unpack(result)
	if err != nil || len(values) != 4 {
		return nil, &ChainRevertError{ProposalID: proposalID.String(), Err: fmt.Errorf("unexpected proposalDetails return shape")}
	}

	targets, ok := values[0].([]common.Address)
	if !ok {
		return nil, &ChainRevertError{ProposalID: proposalID.String(), Err: fmt.Errorf("targets field is not address[]")}
	}
	amounts, ok := values[1].([]*big.Int)
	if !ok {
		return nil, &ChainRevertError{ProposalID: proposalID.String(), Err: fmt.Errorf("values field is not uint256[]")}
	}
	calldatas, ok := values[2].([][]byte)
	if !ok {
		return nil, &ChainRevertError{ProposalID: proposalID.String(), Err: fmt.Errorf("calldatas field is not bytes[]")}
	}
	descHash, ok := values[3].([32]byte)
	if !ok {
		return nil, &ChainRevertError{ProposalID: proposalID.String(), Err: fmt.Errorf("descriptionHash field is not bytes32")}
	}

	details := &models.ProposalDetails{
		Targets:         make([]string, len(targets)),
		Values:          make([]models.BigInt, len(amounts)),
		Calldatas:       calldatas,
		DescriptionHash: "0x" + common.Bytes2Hex(descHash[:]),
	}
	for i, t := range targets {
		details.Targets[i] = t.Hex()
	}
	for i, v := range amounts {
		details.Values[i] = models.NewBigInt(v)
	}

	proposal, err := d.DecodeProposal(ctx, details, opts)
	if err != nil {
		return nil, err
	}
	proposal.Governor = common.HexToAddress(governor).Hex()
	proposal.ProposalID = proposalID.String()
	return proposal, nil
}

// isRevert is a best-effort classifier: rpcclient.Client.EthCall surfaces a
// contract revert as a JSON-RPC error whose message, per every EVM client
// this tool targets, contains "revert".
func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
