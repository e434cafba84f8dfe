package decoder

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
	"github.com/chainsecurity/proposal-decoder/internal/store"
)

func newBareDecoder() *Decoder {
	return New(nil, nil, nil, nil, nil, nil, models.NewProgressTracker(nil), 1, zerolog.Nop())
}

func TestDecodeProposalDecodesViaLocalFallbackABI(t *testing.T) {
	d := newBareDecoder()

	iface, err := codec.NewInterfaceFromSignatures("transfer(address,uint256)")
	require.NoError(t, err)
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	calldata, err := codec.EncodeCall(iface, "transfer", to, big.NewInt(42))
	require.NoError(t, err)

	details := &models.ProposalDetails{
		Targets:   []string{"0x2222222222222222222222222222222222222222"},
		Values:    []models.BigInt{models.NewBigInt(big.NewInt(0))},
		Calldatas: [][]byte{calldata},
	}

	proposal, err := d.DecodeProposal(context.Background(), details, models.DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, proposal.Calls, 1)

	node := proposal.Calls[0]
	require.NotNil(t, node.Decoded)
	assert.Equal(t, "transfer", node.Decoded.Name)
	assert.Equal(t, "0xa9059cbb", node.Decoded.Selector)
	require.Len(t, node.Decoded.Args, 2)
	assert.Equal(t, to, node.Decoded.Args[0])
}

func TestDecodeProposalNotesEmptyCalldataAsPossibleTransfer(t *testing.T) {
	d := newBareDecoder()

	details := &models.ProposalDetails{
		Targets:   []string{"0x3333333333333333333333333333333333333333"},
		Values:    []models.BigInt{models.NewBigInt(big.NewInt(1000))},
		Calldatas: [][]byte{{}},
	}

	proposal, err := d.DecodeProposal(context.Background(), details, models.DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, proposal.Calls, 1)
	assert.Nil(t, proposal.Calls[0].Decoded)
	assert.Contains(t, proposal.Calls[0].Notes, "empty calldata (possible ETH transfer or fallback)")
}

func TestDecodeProposalRejectsMismatchedLengths(t *testing.T) {
	d := newBareDecoder()

	details := &models.ProposalDetails{
		Targets:   []string{"0x1111111111111111111111111111111111111111"},
		Values:    []models.BigInt{},
		Calldatas: [][]byte{{}},
	}

	_, err := d.DecodeProposal(context.Background(), details, models.DecodeOptions{})
	require.Error(t, err)
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestDecodeProposalNotesUnknownSelectorAgainstResolvedABI(t *testing.T) {
	target := common.HexToAddress("0x4444444444444444444444444444444444444444").Hex()

	st, err := store.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	key := models.ArtifactKey{ChainID: 1, Address: target, Kind: models.KindABI}
	require.NoError(t, st.PutPayload(key, `[{"type":"function","name":"pause","inputs":[],"outputs":[]}]`))

	d := New(nil, nil, st, nil, nil, nil, models.NewProgressTracker(nil), 1, zerolog.Nop())

	details := &models.ProposalDetails{
		Targets:   []string{target},
		Values:    []models.BigInt{models.NewBigInt(big.NewInt(0))},
		Calldatas: [][]byte{{0xde, 0xad, 0xbe, 0xef}},
	}

	proposal, err := d.DecodeProposal(context.Background(), details, models.DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, proposal.Calls, 1)
	assert.Nil(t, proposal.Calls[0].Decoded)
	assert.Contains(t, proposal.Calls[0].Notes, "unknown selector; no matching function in the resolved ABI")
}

func TestDecodeProposalNotesABIUnavailableWithoutAnySource(t *testing.T) {
	d := newBareDecoder()

	details := &models.ProposalDetails{
		Targets:   []string{"0x4444444444444444444444444444444444444444"},
		Values:    []models.BigInt{models.NewBigInt(big.NewInt(0))},
		Calldatas: [][]byte{{0xde, 0xad, 0xbe, 0xef}},
	}

	proposal, err := d.DecodeProposal(context.Background(), details, models.DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, proposal.Calls, 1)
	assert.Nil(t, proposal.Calls[0].Decoded)
	assert.Contains(t, proposal.Calls[0].Notes, "ABI not available (unverified or failed fetch); cannot decode selector")
}

func TestDecodeProposalNotesZeroSelector(t *testing.T) {
	d := newBareDecoder()

	details := &models.ProposalDetails{
		Targets:   []string{"0x5555555555555555555555555555555555555555"},
		Values:    []models.BigInt{models.NewBigInt(big.NewInt(0))},
		Calldatas: [][]byte{{0x00, 0x00, 0x00, 0x00, 0x01}},
	}

	proposal, err := d.DecodeProposal(context.Background(), details, models.DecodeOptions{})
	require.NoError(t, err)
	require.Len(t, proposal.Calls, 1)
	assert.Nil(t, proposal.Calls[0].Decoded)
	assert.Contains(t, proposal.Calls[0].Notes, "zero selector; cannot decode")
}

func TestDecodeProposalAttachesProposalParameterSources(t *testing.T) {
	d := newBareDecoder()

	details := &models.ProposalDetails{
		Targets:   []string{"0x6666666666666666666666666666666666666666"},
		Values:    []models.BigInt{models.NewBigInt(big.NewInt(7))},
		Calldatas: [][]byte{{}},
	}

	proposal, err := d.DecodeProposal(context.Background(), details, models.DecodeOptions{TrackSources: true})
	require.NoError(t, err)
	require.Len(t, proposal.Calls, 1)

	sources := proposal.Calls[0].Sources
	require.NotNil(t, sources)
	assert.Equal(t, models.SourceProposalParameter, sources["target"].Kind)
	assert.Equal(t, "targets", sources["target"].Array)
	assert.Equal(t, 0, sources["target"].Index)
	assert.Equal(t, "values", sources["valueWei"].Array)
	assert.Equal(t, "calldatas", sources["rawCalldata"].Array)
}
