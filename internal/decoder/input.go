package decoder

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsecurity/proposal-decoder/internal/codec"
	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// proposeSignature is the four-argument OpenZeppelin Governor `propose`
// signature; its selector is 0x7d5e81e2.
const proposeSignature = "propose(address[],uint256[],bytes[],string)"

// jsonProposal is the proposal JSON document shape, optionally wrapped in
// {details, metadata}.
type jsonProposal struct {
	Targets         []string        `json:"targets"`
	Values          []string        `json:"values"`
	Calldatas       []string        `json:"calldatas"`
	DescriptionHash string          `json:"descriptionHash"`
	Details         *jsonProposal   `json:"details"`
	Metadata        json.RawMessage `json:"metadata"`
}

// ParseInput accepts a JSON document (optionally {details, metadata}-
// wrapped) or a raw propose() calldata blob (hex, with or without "0x").
// Proposal-ID lookup is handled separately by DecodeProposalByID, since it
// requires a governor address and chain the caller must supply out of
// band.
func ParseInput(raw []byte) (*models.ProposalDetails, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, &InputError{Reason: "empty input"}
	}

	if trimmed[0] == '{' {
		return parseJSONProposal(raw)
	}

	return parseRawCalldata(trimmed)
}

func parseJSONProposal(raw []byte) (*models.ProposalDetails, error) {
	var doc jsonProposal
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &InputError{Reason: "malformed proposal JSON", Err: err}
	}
	if doc.Details != nil {
		doc = *doc.Details
	}

	if len(doc.Targets) != len(doc.Values) || len(doc.Targets) != len(doc.Calldatas) {
		return nil, &InputError{Reason: "targets/values/calldatas length mismatch"}
	}

	details := &models.ProposalDetails{
		Targets:         make([]string, len(doc.Targets)),
		Values:          make([]models.BigInt, len(doc.Values)),
		Calldatas:       make([][]byte, len(doc.Calldatas)),
		DescriptionHash: doc.DescriptionHash,
	}
	for i, t := range doc.Targets {
		details.Targets[i] = common.HexToAddress(t).Hex()
	}
	for i, v := range doc.Values {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, &InputError{Reason: "invalid value at index " + strconv.Itoa(i)}
		}
		details.Values[i] = models.NewBigInt(n)
	}
	for i, c := range doc.Calldatas {
		data, err := hexDecode(c)
		if err != nil {
			return nil, &InputError{Reason: "invalid calldata at index " + strconv.Itoa(i), Err: err}
		}
		details.Calldatas[i] = data
	}
	return details, nil
}

// parseRawCalldata decodes a propose(address[],uint256[],bytes[],string)
// blob directly.
func parseRawCalldata(hexStr string) (*models.ProposalDetails, error) {
	data, err := hexDecode(hexStr)
	if err != nil {
		return nil, &InputError{Reason: "input is neither JSON nor valid hex", Err: err}
	}

	iface, err := codec.NewInterfaceFromSignatures(proposeSignature)
	if err != nil {
		return nil, &InputError{Reason: "building propose() interface", Err: err}
	}
	decoded, ok := codec.DecodeCall(iface, data, false)
	if !ok || len(decoded.Args) != 4 {
		return nil, &InputError{Reason: "calldata does not match propose(address[],uint256[],bytes[],string)"}
	}

	targets, ok := decoded.Args[0].([]common.Address)
	if !ok {
		return nil, &InputError{Reason: "propose() targets argument is not address[]"}
	}
	values, ok := decoded.Args[1].([]*big.Int)
	if !ok {
		return nil, &InputError{Reason: "propose() values argument is not uint256[]"}
	}
	calldatas, ok := decoded.Args[2].([][]byte)
	if !ok {
		return nil, &InputError{Reason: "propose() calldatas argument is not bytes[]"}
	}
	description, ok := decoded.Args[3].(string)
	if !ok {
		return nil, &InputError{Reason: "propose() description argument is not string"}
	}
	if len(targets) != len(values) || len(targets) != len(calldatas) {
		return nil, &InputError{Reason: "propose() array arguments have mismatched lengths"}
	}

	details := &models.ProposalDetails{
		Targets:         make([]string, len(targets)),
		Values:          make([]models.BigInt, len(values)),
		Calldatas:       calldatas,
		DescriptionHash: "0x" + common.Bytes2Hex(crypto.Keccak256([]byte(description))),
	}
	for i, t := range targets {
		details.Targets[i] = t.Hex()
	}
	for i, v := range values {
		details.Values[i] = models.NewBigInt(v)
	}
	return details, nil
}

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if err := validHex(s); err != nil {
		return nil, err
	}
	return common.FromHex("0x" + s), nil
}

func validHex(s string) error {
	if len(s)%2 != 0 {
		return &InputError{Reason: "hex string has odd length"}
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return &InputError{Reason: "invalid hex character"}
		}
	}
	return nil
}
