package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// StaticIndex is consulted by AddressVerificationHandler: it reports
// whether an address is a known entry in a chain's static deployment
// index. Implemented by metadata.StaticProvider; declared narrowly here so
// this handler doesn't import the metadata package for more than it needs.
type StaticIndex interface {
	Exists(chainID int64, address string) bool
}

// AddressVerificationHandler emits a warning insight when a call's target
// is absent from the static deployment index for its chain. The
// warning-dedup set is scoped per-proposal: the registry's BeginProposal
// hook resets it at each decode-run entry, so a long-lived decoder warns
// again when a later proposal re-targets the same unverified address.
type AddressVerificationHandler struct {
	index StaticIndex
	mu    sync.Mutex
	seen  map[string]bool
}

// NewAddressVerificationHandler builds the handler with no index; until
// SetIndex supplies one, the handler never matches (no ground truth to
// check against).
func NewAddressVerificationHandler() *AddressVerificationHandler {
	return &AddressVerificationHandler{seen: make(map[string]bool)}
}

// BeginProposal resets the warning-dedup set for a new decode run.
func (h *AddressVerificationHandler) BeginProposal() {
	h.mu.Lock()
	h.seen = make(map[string]bool)
	h.mu.Unlock()
}

// SetIndex wires the static deployment index in after construction, since
// the decoder builds this handler before its StaticProvider is ready.
func (h *AddressVerificationHandler) SetIndex(index StaticIndex) {
	h.index = index
}

func (h *AddressVerificationHandler) Name() string { return "address_verification" }

func (h *AddressVerificationHandler) Match(_ context.Context, hctx *models.HandlerContext) bool {
	return h.index != nil
}

func (h *AddressVerificationHandler) Expand(_ context.Context, hctx *models.HandlerContext) (Expansion, error) {
	if h.index.Exists(hctx.ChainID, hctx.Target) {
		return Expansion{}, nil
	}

	dedupeKey := fmt.Sprintf("%d:%s", hctx.ChainID, strings.ToLower(hctx.Target))
	h.mu.Lock()
	alreadyWarned := h.seen[dedupeKey]
	h.seen[dedupeKey] = true
	h.mu.Unlock()
	if alreadyWarned {
		return Expansion{}, nil
	}

	insight := models.CallInsight{
		Title:         "⚠️ Unverified Target",
		HandlerSource: h.Name(),
		Entries: []models.InsightEntry{
			{
				Label:   "Target",
				Value:   hctx.Target,
				Warning: true,
			},
			{
				Label: "Reason",
				Value: fmt.Sprintf("not present in the static deployment index for chain %d", hctx.ChainID),
			},
		},
	}
	return Expansion{Insights: []models.CallInsight{insight}}, nil
}
