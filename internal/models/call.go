package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParamInfo is the recursive ABI parameter descriptor attached per
// argument. It mirrors go-ethereum's abi.Type tree but only keeps the
// fields a consumer of the decoded tree needs.
type ParamInfo struct {
	Name          string      `json:"name,omitempty"`
	BaseType      string      `json:"baseType"`
	Type          string      `json:"type"`
	Components    []ParamInfo `json:"components,omitempty"`
	ArrayChildren *ParamInfo  `json:"arrayChildren,omitempty"`
}

// DecodedFunction is the result of codec.DecodeCall: a matched function
// plus its bound arguments. ArgSources is nil unless the decode ran with
// source tracking on.
type DecodedFunction struct {
	Name            string          `json:"name"`
	Signature       string          `json:"signature"`
	Selector        string          `json:"selector"`
	Args            []any           `json:"args"`
	ArgTypes        []string        `json:"argTypes"`
	ArgParamInfo    []ParamInfo     `json:"argParamInfo"`
	ArgSources      []DataSource    `json:"argSources,omitempty"`
	AddressMetadata map[string]*AddressMetadata `json:"addressMetadata,omitempty"`
}

// CallEdge labels a child's relation to its parent. Purely descriptive
// metadata, never consulted for control flow.
type CallEdge struct {
	Kind  string `json:"kind"`            // e.g. "multicall", "bridge"
	Label string `json:"label,omitempty"` // e.g. "Linea Bridge"
	Index int    `json:"index"`
}

// InsightEntry is one row of a CallInsight, e.g. "Supply Cap: 0 -> 1000000".
type InsightEntry struct {
	Label    string         `json:"label"`
	Value    string         `json:"value"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Warning  bool           `json:"warning,omitempty"`
}

// CallInsight is a read-only, human-readable finding emitted by an insight
// handler. Once appended to a CallNode it is never mutated.
type CallInsight struct {
	Title         string         `json:"title"`
	Entries       []InsightEntry `json:"entries"`
	HandlerSource string         `json:"handlerSource,omitempty"`
}

// AddressMetadata is the enrichment built for one address. Every field is
// independently optional.
type AddressMetadata struct {
	ContractName      string           `json:"contractName,omitempty"`
	EtherscanLabel    string           `json:"etherscanLabel,omitempty"`
	TokenSymbol       string           `json:"tokenSymbol,omitempty"`
	TokenName         string           `json:"tokenName,omitempty"`
	TokenDecimals     *int             `json:"tokenDecimals,omitempty"`
	BaseTokenSymbol   string           `json:"baseTokenSymbol,omitempty"`
	BaseTokenDecimals *int             `json:"baseTokenDecimals,omitempty"`
	Labels            []string         `json:"labels,omitempty"`
	ENSName           string           `json:"ensName,omitempty"`
	URL               string           `json:"url,omitempty"`
	Description       string           `json:"description,omitempty"`
	Notes             []string         `json:"notes,omitempty"`
	Implementation    *AddressMetadata `json:"implementation,omitempty"`

	// Field provenance, populated only when source tracking is on. Keyed by
	// field name ("contractName", "tokenSymbol", ...).
	Sources map[string]DataSource `json:"sources,omitempty"`
}

// ChildRequest is what a handler's expand() returns for one child call
//: the edge plus the unrouted node input. The engine — not
// the emitting handler — decodes it.
type ChildRequest struct {
	Edge        CallEdge
	ChainID     int64
	Target      string
	ValueWei    *big.Int
	RawCalldata []byte
}

// CallNode is one action or one nested call in the decoded tree. Ownership: the Proposal's Calls[] owns the roots; each node
// exclusively owns its Children — no cycles, no shared substructure.
type CallNode struct {
	ChainID                    int64             `json:"chainId"`
	Target                     string            `json:"target"`
	TargetContractName         string            `json:"targetContractName,omitempty"`
	ValueWei                   BigInt            `json:"valueWei"`
	RawCalldata                hexutil.Bytes     `json:"rawCalldata"`
	Decoded                    *DecodedFunction  `json:"decoded,omitempty"`
	Implementation             string            `json:"implementation,omitempty"`
	ImplementationContractName string            `json:"implementationContractName,omitempty"`
	Insights                   []CallInsight     `json:"insights,omitempty"`
	Children                   []CallEdgeNode    `json:"children,omitempty"`
	Notes                      []string          `json:"notes,omitempty"`

	// Sources records field provenance ("target", "valueWei", "rawCalldata")
	// when the decode ran with source tracking on; nil otherwise. Root nodes
	// carry ProposalParameter sources, handler-synthesized children carry
	// Handler sources.
	Sources map[string]DataSource `json:"sources,omitempty"`
}

// CallEdgeNode is the {edge, node} pair CallNode.Children holds.
type CallEdgeNode struct {
	Edge CallEdge  `json:"edge"`
	Node *CallNode `json:"node"`
}

// ArtifactKind enumerates the four kinds of cached artifact.
type ArtifactKind string

const (
	KindABI          ArtifactKind = "abi-cache"
	KindContractName ArtifactKind = "contract-name-cache"
	KindAddressTag   ArtifactKind = "address-tag-cache"
	KindTokenInfo    ArtifactKind = "token-info-cache"
)

// ArtifactKey identifies one cached artifact: (chainId, address, kind).
type ArtifactKey struct {
	ChainID int64
	Address string
	Kind    ArtifactKind
}

// HandlerContext is the immutable view a handler's match/expand receives.
// Constructed fresh per node and shared by every handler's match/expand on
// that node; never mutated.
type HandlerContext struct {
	ChainID     int64
	Target      string
	ValueWei    *big.Int
	RawCalldata []byte
	Parsed      *ParsedCall
	Options     DecodeOptions
}

// NewCallNode builds a CallNode with its required fields set, wrapping
// valueWei for decimal-string JSON serialization.
func NewCallNode(chainID int64, target string, valueWei *big.Int, rawCalldata []byte) *CallNode {
	return &CallNode{
		ChainID:     chainID,
		Target:      target,
		ValueWei:    NewBigInt(valueWei),
		RawCalldata: hexutil.Bytes(rawCalldata),
	}
}

// ParsedCall is the "parsed?" field of HandlerContext: present once Codec
// has matched a selector against an interface.
type ParsedCall struct {
	Selector string
	Name     string
	Args     []any
	Decoded  *DecodedFunction
}

// DecodeOptions configures one decodeProposal invocation.
type DecodeOptions struct {
	TrackSources bool
	ProxyTimeout int64 // milliseconds; 0 means use the ProxyResolver default (10s)
}

// ProposalDetails is the raw input: parallel arrays plus a description
// hash. Invariant: len(Targets) == len(Values) == len(Calldatas).
type ProposalDetails struct {
	Targets         []string `json:"targets"`
	Values          []BigInt `json:"values"`
	Calldatas       [][]byte `json:"calldatas"`
	DescriptionHash string   `json:"descriptionHash"`
}

// Proposal is the root record: created once per decode, never
// mutated after emission.
type Proposal struct {
	Governor        string     `json:"governor,omitempty"`
	ProposalID      string     `json:"proposalId,omitempty"`
	DescriptionHash string     `json:"descriptionHash,omitempty"`
	Calls           []*CallNode `json:"calls"`
}
