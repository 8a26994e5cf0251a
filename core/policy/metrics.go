package policy

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/auth"
)

var (
	// DecisionsTotal counts authorization decisions by operation, role & outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolsys_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"operation", "role", "decision"},
	)

	// RouteDecisionsTotal counts route guard decisions by role & outcome.
	RouteDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolsys_route_guard_decisions_total",
			Help: "Total number of route guard decisions",
		},
		[]string{"role", "decision"},
	)
)

const (
	decisionAllow        = "allow"
	decisionUnauthorized = "unauthorized"
	decisionForbidden    = "forbidden"
)

func decisionOf(err error) string {
	switch errors.Cause(err) {
	case nil:
		return decisionAllow
	case core.ErrUnauthorized:
		return decisionUnauthorized
	default:
		return decisionForbidden
	}
}

func roleOf(id *auth.Identity) string {
	if id == nil {
		return roleAnonymous
	}
	return string(id.Role)
}

// Instrumented counts the decisions of the wrapped Authorizer & logs its denials.
type Instrumented struct {
	next   Authorizer
	logger core.Logger
}

var _ Authorizer = (*Instrumented)(nil)

func NewInstrumented(next Authorizer, logger core.Logger) *Instrumented {
	return &Instrumented{next: next, logger: logger}
}

func (in *Instrumented) Authorize(id *auth.Identity, op Operation, res *Resource) error {
	err := in.next.Authorize(id, op, res)
	decision := decisionOf(err)
	DecisionsTotal.WithLabelValues(string(op), roleOf(id), decision).Inc()
	if err != nil {
		args := []interface{}{map[string]interface{}{"operation": string(op), "decision": decision}}
		if id != nil {
			args = append(args, *id)
		}
		in.logger.Warn("authorization denied: "+err.Error(), args...)
	}
	return err
}
