package errorhandler

import (
	"context"
	"errors"
	"reflect"

	"github.com/bmvisioli/routeflow/exchange"
	"github.com/bmvisioli/routeflow/processor"
)

// Predicate evaluates a boolean condition against an exchange
type Predicate func(ctx context.Context, ex *exchange.Exchange) (bool, error)

// HandledTrue is a predicate that always considers the failure resolved
func HandledTrue(ctx context.Context, ex *exchange.Exchange) (bool, error) {
	return true, nil
}

// HandledFalse is a predicate that never considers the failure resolved
func HandledFalse(ctx context.Context, ex *exchange.Exchange) (bool, error) {
	return false, nil
}

// ExceptionPolicy associates a failure type with an optional fault-handling
// processor and an optional handled-predicate. A nil Handler means the policy
// exists purely to decide handled/not-handled; a nil Handled predicate means
// the failure is not handled.
type ExceptionPolicy struct {
	// RouteID scopes the policy to a single route; "" means global scope
	RouteID string

	// Handler is the fault-handling processor invoked under this policy
	Handler processor.AsyncProcessor

	// Handled decides, after fault handling, whether the failure is resolved
	Handled Predicate
}

// ExceptionPolicyStrategy resolves the policy applicable to a failure.
// Resolve must be a pure lookup with no side effects on the exchange.
type ExceptionPolicyStrategy interface {
	Resolve(ex *exchange.Exchange, failure error) *ExceptionPolicy
}

type policyEntry struct {
	prototype error
	matchType reflect.Type
	policy    *ExceptionPolicy
}

// DefaultExceptionPolicyStrategy resolves policies by failure type.
// The failure's wrap chain is walked outermost first; at each link an exact
// type (or sentinel identity) match beats an interface match. At equal
// specificity a route-scoped policy beats a global one, then registration
// order decides. The table is built at route-construction time and must not
// be mutated once exchanges are in flight.
type DefaultExceptionPolicyStrategy struct {
	entries []policyEntry
}

// NewDefaultExceptionPolicyStrategy creates an empty policy table
func NewDefaultExceptionPolicyStrategy() *DefaultExceptionPolicyStrategy {
	return &DefaultExceptionPolicyStrategy{}
}

// Register adds a policy matching failures of prototype's concrete type.
// Sentinel errors (package-level errors.New values) match by identity.
func (s *DefaultExceptionPolicyStrategy) Register(prototype error, policy *ExceptionPolicy) *DefaultExceptionPolicyStrategy {
	s.entries = append(s.entries, policyEntry{
		prototype: prototype,
		matchType: reflect.TypeOf(prototype),
		policy:    policy,
	})
	return s
}

// RegisterType adds a policy matching failures assignable to t. Use this to
// match interface types, which cannot be expressed as a prototype value.
func (s *DefaultExceptionPolicyStrategy) RegisterType(t reflect.Type, policy *ExceptionPolicy) *DefaultExceptionPolicyStrategy {
	s.entries = append(s.entries, policyEntry{
		matchType: t,
		policy:    policy,
	})
	return s
}

// RegisterFor adds a policy matching failures whose type is exactly T, or
// implements T when T is an interface.
func RegisterFor[T error](s *DefaultExceptionPolicyStrategy, policy *ExceptionPolicy) *DefaultExceptionPolicyStrategy {
	return s.RegisterType(reflect.TypeOf((*T)(nil)).Elem(), policy)
}

// match ranks: chain depth, then kind (0 exact, 1 interface), then scope
// (0 route, 1 global). Lower wins at each position in turn.
type match struct {
	depth int
	kind  int
	scope int
	order int
}

func (m match) better(other match) bool {
	if m.depth != other.depth {
		return m.depth < other.depth
	}
	if m.kind != other.kind {
		return m.kind < other.kind
	}
	if m.scope != other.scope {
		return m.scope < other.scope
	}
	return m.order < other.order
}

// Resolve implements ExceptionPolicyStrategy
func (s *DefaultExceptionPolicyStrategy) Resolve(ex *exchange.Exchange, failure error) *ExceptionPolicy {
	var best *ExceptionPolicy
	var bestMatch match

	depth := 0
	for cause := failure; cause != nil; cause = errors.Unwrap(cause) {
		causeType := reflect.TypeOf(cause)

		for order, entry := range s.entries {
			if entry.policy.RouteID != "" && entry.policy.RouteID != ex.RouteID() {
				continue
			}

			kind, ok := entry.matches(cause, causeType)
			if !ok {
				continue
			}

			scope := 1
			if entry.policy.RouteID != "" {
				scope = 0
			}

			candidate := match{depth: depth, kind: kind, scope: scope, order: order}
			if best == nil || candidate.better(bestMatch) {
				best = entry.policy
				bestMatch = candidate
			}
		}
		depth++
	}

	return best
}

// sentinelType is the concrete type of errors.New values. Sentinel prototypes
// share this type, so matching them structurally would make every sentinel
// claim every other; they match by identity only.
var sentinelType = reflect.TypeOf(errors.New(""))

// matches reports whether the entry claims this cause and how specifically:
// 0 for an exact type or sentinel identity match, 1 for an interface match.
func (e policyEntry) matches(cause error, causeType reflect.Type) (int, bool) {
	if e.prototype != nil {
		if cause == e.prototype {
			return 0, true
		}
		if e.matchType == sentinelType {
			return 0, false
		}
	}
	if causeType == e.matchType {
		return 0, true
	}
	if e.matchType != nil && e.matchType.Kind() == reflect.Interface && causeType.Implements(e.matchType) {
		return 1, true
	}
	return 0, false
}
