// Package policy restricts which remote agents a plan may dispatch tasks
// to, via per-request allow/deny lists carried on context. A deployment
// that exposes the orchestrator to multiple tenants can scope a tenant to a
// subset of the agent registry without touching the registry itself.
package policy

import "context"

type contextKey int

const policyKey contextKey = iota + 1

// Policy names which agents a request may route to.
type Policy struct {
	// Allow lists agents explicitly permitted. Empty means every registered
	// agent not in Deny is permitted.
	Allow []string
	// Deny lists agents explicitly forbidden, taking precedence over Allow.
	Deny []string
}

// WithPolicy attaches p to ctx for the duration of one request.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	return context.WithValue(ctx, policyKey, p)
}

// FromContext retrieves the Policy attached to ctx, if any.
func FromContext(ctx context.Context) *Policy {
	p, _ := ctx.Value(policyKey).(*Policy)
	return p
}

// Allowed reports whether agent is permitted under p. A nil p permits every
// agent.
func Allowed(agent string, p *Policy) bool {
	if p == nil {
		return true
	}
	for _, d := range p.Deny {
		if d == agent {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, a := range p.Allow {
		if a == agent {
			return true
		}
	}
	return false
}

// Filter returns the subset of agents permitted under p, preserving order.
func Filter(agents []string, p *Policy) []string {
	if p == nil {
		return agents
	}
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		if Allowed(a, p) {
			out = append(out, a)
		}
	}
	return out
}
