package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// Recognized condition keys
const (
	KeyRole   = "role"
	KeyRoleID = "role_id"
	KeyAction = "action"
)

// DefaultDocumentaryKeys are condition keys no caller asserts; they are ignored
var DefaultDocumentaryKeys = []string{"has_objections"}

// Condition is the typed view of a transition guard. Extra holds the
// free-form keys that are compared for equality against the caller context.
type Condition struct {
	Role      string
	RoleID    any
	HasRoleID bool
	Action    string
	Extra     map[string]any
}

// ParseCondition builds a Condition from the stored guard map
func ParseCondition(raw map[string]any) Condition {
	c := Condition{Extra: map[string]any{}}
	for k, v := range raw {
		switch k {
		case KeyRole:
			if v != nil {
				c.Role = strings.TrimSpace(fmt.Sprint(v))
			}
		case KeyRoleID:
			if v != nil {
				c.RoleID = v
				c.HasRoleID = true
			}
		case KeyAction:
			if v != nil {
				c.Action = strings.TrimSpace(fmt.Sprint(v))
			}
		default:
			c.Extra[k] = v
		}
	}
	return c
}

// Map converts the condition back into its stored form
func (c Condition) Map() map[string]any {
	m := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		m[k] = v
	}
	if c.Role != "" {
		m[KeyRole] = c.Role
	}
	if c.HasRoleID {
		m[KeyRoleID] = c.RoleID
	}
	if c.Action != "" {
		m[KeyAction] = c.Action
	}
	return m
}

// IsEmpty reports whether the condition has no keys at all
func (c Condition) IsEmpty() bool {
	return c.Role == "" && !c.HasRoleID && c.Action == "" && len(c.Extra) == 0
}

// HasRoleConstraint reports whether the condition restricts the acting role
func (c Condition) HasRoleConstraint() bool {
	return c.HasRoleID || c.Role != ""
}

// Evaluator decides whether a condition holds for a user and a caller context
type Evaluator struct {
	documentary map[string]bool
}

// NewEvaluator creates an evaluator ignoring the given documentary keys
func NewEvaluator(documentaryKeys []string) *Evaluator {
	doc := make(map[string]bool, len(documentaryKeys))
	for _, k := range documentaryKeys {
		doc[k] = true
	}
	return &Evaluator{documentary: doc}
}

// RoleMatches applies the role_id / role rules only.
// role_id takes precedence over role when both are present.
func (e *Evaluator) RoleMatches(c Condition, user *entity.User) error {
	if c.HasRoleID {
		want, ok := toInt64(c.RoleID)
		if !ok {
			return &ConditionError{Key: KeyRoleID, Expected: c.RoleID}
		}
		got := user.RoleID()
		if got == nil || *got != want {
			return &ConditionError{Key: KeyRoleID, Expected: want}
		}
		return nil
	}
	if c.Role != "" {
		if user.RoleName() == "" || Normalize(user.RoleName()) != Normalize(c.Role) {
			return &ConditionError{Key: KeyRole, Expected: c.Role}
		}
	}
	return nil
}

// Evaluate returns nil when the condition holds, or a *ConditionError naming
// the first key that failed
func (e *Evaluator) Evaluate(c Condition, user *entity.User, ctx map[string]any) error {
	if c.IsEmpty() {
		return nil
	}
	if err := e.RoleMatches(c, user); err != nil {
		return err
	}

	// A context without an action is a don't-care for the action key
	if c.Action != "" {
		if got, ok := contextAction(ctx); ok && !strings.EqualFold(got, c.Action) {
			return &ConditionError{Key: KeyAction, Expected: c.Action}
		}
	}

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if e.documentary[k] {
			continue
		}
		want := c.Extra[k]
		got, ok := ctx[k]
		if !ok || !valuesEqual(got, want) {
			return &ConditionError{Key: k, Expected: want}
		}
	}
	return nil
}

func contextAction(ctx map[string]any) (string, bool) {
	v, ok := ctx[KeyAction]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "", false
	}
	return s, true
}

// valuesEqual is deep equality with numbers compared by value, so that
// JSON-decoded floats match integer literals
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}
