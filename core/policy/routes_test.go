package policy

import (
	"net/http"
	"testing"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/auth"
)

func TestRouteGuard_Check(t *testing.T) {
	guard, err := NewRouteGuard()
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      *auth.Identity
		method  string
		path    string
		wantErr error
	}{
		{name: "index, anonymous", method: http.MethodGet, path: "/"},
		{name: "empty path is index", method: http.MethodGet, path: ""},
		{name: "health", method: http.MethodGet, path: "/health"},
		{name: "login page", method: http.MethodPost, path: "/login"},
		{name: "login page, authenticated", id: student1, method: http.MethodGet, path: "/login"},
		{name: "api login", method: http.MethodPost, path: "/api/login"},
		{name: "api login, wrong method", method: http.MethodGet, path: "/api/login", wantErr: core.ErrUnauthorized},
		{name: "logout, anonymous", method: http.MethodPost, path: "/logout", wantErr: core.ErrUnauthorized},
		{name: "logout", id: teacher1, method: http.MethodPost, path: "/logout"},

		{name: "principal dashboard", id: principal1, method: http.MethodGet, path: "/principal"},
		{name: "principal dashboard, anonymous", method: http.MethodGet, path: "/principal", wantErr: core.ErrUnauthorized},
		{name: "principal dashboard, student", id: student1, method: http.MethodGet, path: "/principal", wantErr: core.ErrForbidden},
		{name: "principal sub-path", id: principal1, method: http.MethodGet, path: "/principal/anything"},
		{name: "principal sub-path, teacher", id: teacher1, method: http.MethodGet, path: "/principal/anything", wantErr: core.ErrForbidden},
		{name: "edit course", id: principal1, method: http.MethodPost, path: "/course/42/edit"},
		{name: "delete course, GET", id: principal1, method: http.MethodGet, path: "/course/42/delete", wantErr: core.ErrForbidden},

		{name: "set assignment", id: teacher1, method: http.MethodPost, path: "/course/42/set-assignment"},
		{name: "set assignment, principal", id: principal1, method: http.MethodPost, path: "/course/42/set-assignment", wantErr: core.ErrForbidden},
		{name: "api create assignment", id: teacher1, method: http.MethodPost, path: "/api/assignments"},
		{name: "api list submissions", id: teacher1, method: http.MethodGet, path: "/api/assignments/42/submissions"},
		{name: "api submit, teacher", id: teacher1, method: http.MethodPost, path: "/api/assignments/42/submissions", wantErr: core.ErrForbidden},

		{name: "enroll", id: student1, method: http.MethodPost, path: "/course/42/enroll"},
		{name: "enroll, teacher", id: teacher1, method: http.MethodPost, path: "/course/42/enroll", wantErr: core.ErrForbidden},
		{name: "api list assignments", id: student1, method: http.MethodGet, path: "/api/assignments"},
		{name: "api create assignment, student", id: student1, method: http.MethodPost, path: "/api/assignments", wantErr: core.ErrForbidden},
		{name: "api submit", id: student1, method: http.MethodPost, path: "/api/assignments/42/submissions"},
		{name: "api list submissions, student", id: student1, method: http.MethodGet, path: "/api/assignments/42/submissions", wantErr: core.ErrForbidden},
		{name: "api own submissions", id: student1, method: http.MethodGet, path: "/api/submissions"},
		{name: "api own submissions, teacher", id: teacher1, method: http.MethodGet, path: "/api/submissions", wantErr: core.ErrForbidden},
		{name: "api own submissions, anonymous", method: http.MethodGet, path: "/api/submissions", wantErr: core.ErrUnauthorized},
		{name: "nested path does not match param", id: student1, method: http.MethodPost, path: "/course/42/x/enroll", wantErr: core.ErrForbidden},

		{name: "undeclared, anonymous", method: http.MethodGet, path: "/secret", wantErr: core.ErrUnauthorized},
		{name: "undeclared, authenticated", id: principal1, method: http.MethodGet, path: "/secret", wantErr: core.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Check(tt.id, tt.method, tt.path)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func Test_loadRouteTable(t *testing.T) {
	newEnforcer := func(t *testing.T) *casbin.SyncedEnforcer {
		m, err := model.NewModelFromString(routeModel)
		require.NoError(t, err)
		e, err := casbin.NewSyncedEnforcer(m)
		require.NoError(t, err)
		return e
	}

	tests := []struct {
		name    string
		table   string
		wantErr bool
	}{
		{name: "comments & blank lines", table: "# comment\n\n  \np, anonymous, /, GET\n"},
		{name: "role rule", table: "g, student, anonymous"},
		{name: "short route rule", table: "p, anonymous, /", wantErr: true},
		{name: "long role rule", table: "g, a, b, c", wantErr: true},
		{name: "unknown type", table: "x, a, b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loadRouteTable(newEnforcer(t), tt.table)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
