// Package roles maps coarse roles onto the subrole labels they grant
// and answers authorization questions about administrative actions.
// The registry is built once at startup and injected wherever role
// knowledge is needed.
package roles

import (
	"go-user-service/internal/feature/user"
)

// Administrative actions checked against a principal's subroles.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionDelete = "delete"
)

type Registry struct {
	defaultRole string
	adminRole   string
	subroles    map[string][]string
}

// New builds a registry. overrides, usually from config, replaces or
// extends the built-in role table; the default and admin roles always
// have at least their own label.
func New(defaultRole, adminRole string, overrides map[string][]string) *Registry {
	table := map[string][]string{
		defaultRole: {defaultRole},
		adminRole:   {adminRole, defaultRole},
	}
	for role, subs := range overrides {
		table[role] = subs
	}
	return &Registry{
		defaultRole: defaultRole,
		adminRole:   adminRole,
		subroles:    table,
	}
}

func (r *Registry) DefaultRole() string { return r.defaultRole }
func (r *Registry) AdminRole() string   { return r.adminRole }

// Known reports whether role appears in the role table.
func (r *Registry) Known(role string) bool {
	_, ok := r.subroles[role]
	return ok
}

// SubrolesFor returns the subrole set derived from a role. Unknown
// roles get only their own label.
func (r *Registry) SubrolesFor(role string) user.StringSet {
	subs, ok := r.subroles[role]
	if !ok {
		return user.StringSet{role}
	}
	out := make(user.StringSet, len(subs))
	copy(out, subs)
	return out
}

// Can reports whether a principal holding the given subroles may
// perform an administrative action. All administrative actions
// require the admin label; the check is membership in subroles, not
// role equality.
func (r *Registry) Can(subs user.StringSet, action string) bool {
	switch action {
	case ActionRead, ActionCreate, ActionDelete:
		return subs.Contains(r.adminRole)
	default:
		return false
	}
}
