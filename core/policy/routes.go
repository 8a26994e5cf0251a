package policy

import (
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/auth"
)

const roleAnonymous = "anonymous"

//go:embed model.conf
var routeModel string

//go:embed routes.csv
var routeTable string

// RouteGuard checks requests against the declared route table before they are dispatched.
type RouteGuard struct {
	enforcer *casbin.SyncedEnforcer
}

func NewRouteGuard() (*RouteGuard, error) {
	m, err := model.NewModelFromString(routeModel)
	if err != nil {
		return nil, errors.Wrap(err, "loading route model")
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, errors.Wrap(err, "creating enforcer")
	}
	if err = loadRouteTable(enforcer, routeTable); err != nil {
		return nil, err
	}
	return &RouteGuard{enforcer: enforcer}, nil
}

// loadRouteTable parses the `p` & `g` lines of a casbin policy CSV.
func loadRouteTable(enforcer *casbin.SyncedEnforcer, table string) error {
	for _, line := range strings.Split(table, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch ptype, rule := parts[0], parts[1:]; ptype {
		case "p":
			if len(rule) != 3 {
				return errors.Errorf("invalid route rule %q", line)
			}
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return errors.Wrapf(err, "adding route rule %q", line)
			}
		case "g":
			if len(rule) != 2 {
				return errors.Errorf("invalid role rule %q", line)
			}
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return errors.Wrapf(err, "adding role rule %q", line)
			}
		default:
			return errors.Errorf("unknown rule type %q", ptype)
		}
	}
	return nil
}

// Check returns nil if the identity may request `method path`, an error wrapping
// core.ErrUnauthorized if an anonymous request is denied, or core.ErrForbidden otherwise.
func (g *RouteGuard) Check(id *auth.Identity, method, path string) error {
	role := roleOf(id)
	if path == "" {
		path = "/"
	}
	allowed, err := g.enforcer.Enforce(role, path, method)
	if err != nil {
		return errors.Wrap(err, "enforcing route table")
	}

	decision := decisionAllow
	defer func() { RouteDecisionsTotal.WithLabelValues(role, decision).Inc() }()

	if allowed {
		return nil
	}
	if id == nil {
		decision = decisionUnauthorized
		return errors.Wrapf(core.ErrUnauthorized, "%s %s", method, path)
	}
	decision = decisionForbidden
	return errors.Wrapf(core.ErrForbidden, "%s %s", method, path)
}
