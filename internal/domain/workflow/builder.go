package workflow

import (
	"errors"
	"fmt"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// Builder assembles a Snapshot in code. Identifiers are assigned in
// declaration order, so transition ids follow the order of Permit calls.
type Builder struct {
	workflow    entity.Workflow
	stages      []*entity.Stage
	stageByName map[string]*entity.Stage
	transitions []entity.Transition
	permissions []entity.StagePermission
	roles       []*entity.Role
	roleByName  map[string]*entity.Role
	nextID      int64
	errs        []error
}

// StageConfig configures one stage of a Builder
type StageConfig struct {
	b     *Builder
	stage *entity.Stage
}

// NewBuilder creates a builder for a workflow with the given name
func NewBuilder(name string) *Builder {
	b := &Builder{
		stageByName: make(map[string]*entity.Stage),
		roleByName:  make(map[string]*entity.Role),
	}
	b.workflow = entity.Workflow{ID: b.id(), Name: name}
	return b
}

func (b *Builder) id() int64 {
	b.nextID++
	return b.nextID
}

// Describe sets the workflow description
func (b *Builder) Describe(description string) *Builder {
	b.workflow.Description = description
	return b
}

// IncludeUnscopedActions sets the workflow's action projection policy
func (b *Builder) IncludeUnscopedActions(include bool) *Builder {
	b.workflow.IncludeUnscopedActions = include
	return b
}

// Role declares a role with the given precedence
func (b *Builder) Role(name string, precedence int) *Builder {
	if r, ok := b.roleByName[name]; ok {
		r.Precedence = precedence
		return b
	}
	r := &entity.Role{ID: b.id(), Name: name, Precedence: precedence}
	b.roles = append(b.roles, r)
	b.roleByName[name] = r
	return b
}

// RoleByName returns a declared role
func (b *Builder) RoleByName(name string) (*entity.Role, bool) {
	r, ok := b.roleByName[name]
	return r, ok
}

func (b *Builder) role(name string) *entity.Role {
	if _, ok := b.roleByName[name]; !ok {
		b.Role(name, DefaultRolePrecedence)
	}
	return b.roleByName[name]
}

// Configure returns the configuration of a stage, declaring it on first use
func (b *Builder) Configure(name string) *StageConfig {
	st, ok := b.stageByName[name]
	if !ok {
		if name == "" {
			b.errs = append(b.errs, errors.New("stage name is required"))
		}
		st = &entity.Stage{ID: b.id(), WorkflowID: b.workflow.ID, Name: name}
		b.stages = append(b.stages, st)
		b.stageByName[name] = st
	}
	return &StageConfig{b: b, stage: st}
}

// Initial marks the stage as the workflow's initial stage
func (c *StageConfig) Initial() *StageConfig {
	c.stage.IsInitial = true
	return c
}

// Final marks the stage as terminal
func (c *StageConfig) Final() *StageConfig {
	c.stage.IsFinal = true
	return c
}

// Describe sets the stage description
func (c *StageConfig) Describe(description string) *StageConfig {
	c.stage.Description = description
	return c
}

// Kind sets an explicit stage kind
func (c *StageConfig) Kind(kind StageKind) *StageConfig {
	if !kind.IsValid() {
		c.b.errs = append(c.b.errs, fmt.Errorf("stage %s: invalid kind %q", c.stage.Name, kind))
	}
	c.stage.Kind = string(kind)
	return c
}

// ForwardTo sets an explicit forward policy
func (c *StageConfig) ForwardTo(policy ForwardPolicy) *StageConfig {
	if !policy.IsValid() {
		c.b.errs = append(c.b.errs, fmt.Errorf("stage %s: invalid forward policy %q", c.stage.Name, policy))
	}
	c.stage.ForwardTo = string(policy)
	return c
}

// ProcessedBy grants can_process on the stage to the given roles, in order
func (c *StageConfig) ProcessedBy(roles ...string) *StageConfig {
	return c.grant(true, roles...)
}

// VisibleTo records permissions without can_process
func (c *StageConfig) VisibleTo(roles ...string) *StageConfig {
	return c.grant(false, roles...)
}

func (c *StageConfig) grant(canProcess bool, roles ...string) *StageConfig {
	for _, name := range roles {
		r := c.b.role(name)
		c.b.permissions = append(c.b.permissions, entity.StagePermission{
			ID:         c.b.id(),
			StageID:    c.stage.ID,
			RoleID:     r.ID,
			CanProcess: canProcess,
		})
	}
	return c
}

// Permit adds an unconditional transition to the target stage
func (c *StageConfig) Permit(to string) *StageConfig {
	return c.PermitIf(to, nil)
}

// PermitIf adds a guarded transition to the target stage
func (c *StageConfig) PermitIf(to string, condition map[string]any) *StageConfig {
	target := c.b.Configure(to).stage
	if condition == nil {
		condition = map[string]any{}
	}
	c.b.transitions = append(c.b.transitions, entity.Transition{
		ID:          c.b.id(),
		WorkflowID:  c.b.workflow.ID,
		FromStageID: c.stage.ID,
		ToStageID:   target.ID,
		Condition:   condition,
	})
	return c
}

// Build validates the definition and returns its snapshot
func (b *Builder) Build() (*Snapshot, error) {
	errs := append([]error{}, b.errs...)

	initial := 0
	for _, st := range b.stages {
		if st.IsInitial {
			initial++
		}
	}
	if initial > 1 {
		errs = append(errs, fmt.Errorf("workflow %s: %d initial stages", b.workflow.Name, initial))
	}

	seen := make(map[[2]int64]bool, len(b.transitions))
	for _, t := range b.transitions {
		key := [2]int64{t.FromStageID, t.ToStageID}
		if seen[key] {
			errs = append(errs, fmt.Errorf("workflow %s: duplicate transition %d -> %d", b.workflow.Name, t.FromStageID, t.ToStageID))
		}
		seen[key] = true
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	stages := make([]entity.Stage, 0, len(b.stages))
	for _, st := range b.stages {
		stages = append(stages, *st)
	}
	roles := make([]entity.Role, 0, len(b.roles))
	for _, r := range b.roles {
		roles = append(roles, *r)
	}
	transitions := append([]entity.Transition{}, b.transitions...)
	permissions := append([]entity.StagePermission{}, b.permissions...)

	return NewSnapshot(b.workflow, stages, transitions, permissions, roles), nil
}

// MustBuild is Build for definitions known to be valid; it panics on error
func (b *Builder) MustBuild() *Snapshot {
	snap, err := b.Build()
	if err != nil {
		panic(err)
	}
	return snap
}
