// Package handlers implements the handler registry and the concrete
// handler library: bridge handlers that expand an outer bridge call into
// inner child calls on the destination chain, and insight handlers that
// recognize governance selectors and emit human-readable findings.
package handlers

import (
	"context"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// Handler is the registry contract: Match is pure (no I/O); Expand may
// perform I/O and must be deterministic given the same context and
// external state at call time.
type Handler interface {
	Name() string
	Match(ctx context.Context, hctx *models.HandlerContext) bool
	Expand(ctx context.Context, hctx *models.HandlerContext) (Expansion, error)
}

// Expansion is what one handler's Expand call contributes.
type Expansion struct {
	Children []models.ChildRequest
	Insights []models.CallInsight
}

// Registry is an ordered list of handlers. Apply runs every handler whose
// Match returns true and concatenates their outputs in registration order,
// keeping the tree deterministic.
type Registry struct {
	handlers []Handler
}

// NewRegistry builds an empty registry; handlers are added in the order
// they should run via Register.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends h to the registry's ordered list.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// proposalScoped is implemented by handlers that keep state bounded to one
// decode run (e.g. the address-verification warning dedup set).
type proposalScoped interface {
	BeginProposal()
}

// BeginProposal notifies proposal-scoped handlers that a new decode run is
// starting, so per-run state does not leak across proposals when the same
// registry serves a long-lived decoder.
func (r *Registry) BeginProposal() {
	for _, h := range r.handlers {
		if ps, ok := h.(proposalScoped); ok {
			ps.BeginProposal()
		}
	}
}

// Apply runs every matching handler in registration order and merges their
// outputs. A handler whose Expand returns an error is isolated: its partial output (if any) is dropped, a diagnostic note
// is recorded, and the remaining handlers still run.
func (r *Registry) Apply(ctx context.Context, hctx *models.HandlerContext) (Expansion, []string) {
	var merged Expansion
	var notes []string

	for _, h := range r.handlers {
		if !h.Match(ctx, hctx) {
			continue
		}
		exp, err := h.Expand(ctx, hctx)
		if err != nil {
			notes = append(notes, "handler "+h.Name()+" failed: "+err.Error())
			continue
		}
		merged.Children = append(merged.Children, exp.Children...)
		merged.Insights = append(merged.Insights, exp.Insights...)
	}

	return merged, notes
}
