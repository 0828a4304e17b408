package permissions

import (
	"time"
)

// Action represents an operation an actor can perform on an app
type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionAdd, ActionEdit, ActionDelete, ActionManage:
		return true
	}
	return false
}

// Actor identifies the requesting user and their resolved role.
// Session handling happens outside the core; the actor arrives here
// already authenticated.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Grant holds the five independent action flags for one (app, role) pair.
// can_manage does not imply the other four.
type Grant struct {
	ID        int64     `json:"id"`
	AppCode   string    `json:"app_code"`
	Role      string    `json:"role"`
	CanView   bool      `json:"can_view"`
	CanAdd    bool      `json:"can_add"`
	CanEdit   bool      `json:"can_edit"`
	CanDelete bool      `json:"can_delete"`
	CanManage bool      `json:"can_manage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Allows reports whether the grant permits the given action
func (g *Grant) Allows(action Action) bool {
	switch action {
	case ActionView:
		return g.CanView
	case ActionAdd:
		return g.CanAdd
	case ActionEdit:
		return g.CanEdit
	case ActionDelete:
		return g.CanDelete
	case ActionManage:
		return g.CanManage
	}
	return false
}

// Visibility is the per-field redaction policy value
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// FieldPermission hides a single field from a role. Absence of a row
// means visible; redaction policy is data, not code.
type FieldPermission struct {
	ID         int64      `json:"id"`
	AppCode    string     `json:"app_code"`
	FieldCode  string     `json:"field_code"`
	Role       string     `json:"role"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Decision is the outcome of a permission evaluation
type Decision struct {
	Allowed bool `json:"allowed"`
	// HiddenFields holds the field codes the actor must not see.
	// Populated only for ActionView; nil for every other action.
	HiddenFields map[string]bool `json:"hidden_fields,omitempty"`
	// SuperRole is true when the decision came from the reserved
	// super-role configuration rather than a stored grant.
	SuperRole bool `json:"super_role,omitempty"`
}

// Snapshot is the immutable per-(app, role) policy view the evaluator
// works from. Loaded per request or served from a short-TTL cache so
// concurrent requests never share mutable policy state.
type Snapshot struct {
	AppCode      string    `json:"app_code"`
	Role         string    `json:"role"`
	Grant        *Grant    `json:"grant,omitempty"` // nil when no row exists
	HiddenFields []string  `json:"hidden_fields,omitempty"`
	LoadedAt     time.Time `json:"loaded_at"`
}
