package models

// DataSourceKind tags the variant of DataSource carried alongside a
// Sourced value: one case per provenance kind, carried uniformly through
// the tree instead of branching on type at each call site.
type DataSourceKind string

const (
	SourceCalldata           DataSourceKind = "calldata"
	SourceEtherscanABI       DataSourceKind = "etherscan_abi"
	SourceEtherscanSourcecode DataSourceKind = "etherscan_sourcecode"
	SourceEtherscanTag       DataSourceKind = "etherscan_tag"
	SourceOnChain            DataSourceKind = "on_chain"
	SourceStaticMetadata     DataSourceKind = "static_metadata"
	SourceExternalAPI        DataSourceKind = "external_api"
	SourceLocalABI           DataSourceKind = "local_abi"
	SourceHandler            DataSourceKind = "handler"
	SourceProposalParameter  DataSourceKind = "proposal_parameter"
	SourceHardcoded          DataSourceKind = "hardcoded"
)

// DataSource is a tagged union: only the fields relevant to Kind are
// populated. A flat struct rather than an interface hierarchy, which
// would make JSON round-tripping of the `{type, ...fields}` wire shape
// awkward.
type DataSource struct {
	Kind DataSourceKind `json:"type"`

	// Calldata
	Offset   int    `json:"offset,omitempty"`
	Length   int    `json:"length,omitempty"`
	Raw      string `json:"raw,omitempty"`
	Encoding string `json:"encoding,omitempty"`

	// EtherscanABI / EtherscanSourcecode / EtherscanTag / OnChain / StaticMetadata / ExternalAPI / LocalABI
	ChainID  int64  `json:"chainId,omitempty"`
	Address  string `json:"address,omitempty"`
	Verified bool   `json:"verified,omitempty"`
	TagKind  string `json:"kind,omitempty"`
	Method   string `json:"method,omitempty"`
	Args     string `json:"args,omitempty"`
	Cast     string `json:"castCommand,omitempty"`
	Path     string `json:"path,omitempty"`
	Key      string `json:"key,omitempty"`
	Market   string `json:"market,omitempty"`
	API      string `json:"api,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Variant  string `json:"variant,omitempty"`

	// Handler
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// ProposalParameter
	Array string `json:"array,omitempty"`
	Index int    `json:"index,omitempty"`

	// Hardcoded
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Sourced pairs a value with its provenance. Every field of a decoded node
// is either plain T or Sourced[T], chosen statically by the trackSources
// option; tracking is all-on or all-off within one decode.
type Sourced[T any] struct {
	Value  T          `json:"value"`
	Source DataSource `json:"source"`
}

// NewSourced is a convenience constructor used throughout codec/metadata so
// call sites read as a single expression instead of a struct literal.
func NewSourced[T any](value T, source DataSource) Sourced[T] {
	return Sourced[T]{Value: value, Source: source}
}
