package workflow

import (
	"sort"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// DefaultRolePrecedence is used when a processor role is absent
const DefaultRolePrecedence = 999

// Snapshot is a fully materialized, read-only view of one workflow:
// its stages, transitions, stage permissions and the roles they reference.
// A snapshot is fetched once per unit of work and never mutated afterwards.
type Snapshot struct {
	Workflow    entity.Workflow          `json:"workflow"`
	Stages      []entity.Stage           `json:"stages"`
	Transitions []entity.Transition      `json:"transitions"`
	Permissions []entity.StagePermission `json:"permissions"`
	Roles       []entity.Role            `json:"roles"`

	stagesByID   map[int64]*entity.Stage
	stagesByName map[string]*entity.Stage
	outgoing     map[int64][]*entity.Transition
	edges        map[[2]int64]*entity.Transition
	perms        map[int64][]*entity.StagePermission
	roles        map[int64]*entity.Role
}

// NewSnapshot builds an indexed snapshot
func NewSnapshot(
	wf entity.Workflow,
	stages []entity.Stage,
	transitions []entity.Transition,
	permissions []entity.StagePermission,
	roles []entity.Role,
) *Snapshot {
	s := &Snapshot{
		Workflow:    wf,
		Stages:      stages,
		Transitions: transitions,
		Permissions: permissions,
		Roles:       roles,
	}
	s.Reindex()
	return s
}

// Reindex rebuilds the lookup tables; call it after decoding a snapshot
func (s *Snapshot) Reindex() {
	sort.Slice(s.Stages, func(i, j int) bool { return s.Stages[i].ID < s.Stages[j].ID })
	sort.Slice(s.Transitions, func(i, j int) bool { return s.Transitions[i].ID < s.Transitions[j].ID })
	sort.Slice(s.Permissions, func(i, j int) bool { return s.Permissions[i].ID < s.Permissions[j].ID })

	s.stagesByID = make(map[int64]*entity.Stage, len(s.Stages))
	s.stagesByName = make(map[string]*entity.Stage, len(s.Stages))
	for i := range s.Stages {
		st := &s.Stages[i]
		s.stagesByID[st.ID] = st
		s.stagesByName[st.Name] = st
	}

	s.outgoing = make(map[int64][]*entity.Transition)
	s.edges = make(map[[2]int64]*entity.Transition, len(s.Transitions))
	for i := range s.Transitions {
		t := &s.Transitions[i]
		s.outgoing[t.FromStageID] = append(s.outgoing[t.FromStageID], t)
		key := [2]int64{t.FromStageID, t.ToStageID}
		if _, exists := s.edges[key]; !exists {
			s.edges[key] = t
		}
	}

	s.perms = make(map[int64][]*entity.StagePermission)
	for i := range s.Permissions {
		p := &s.Permissions[i]
		s.perms[p.StageID] = append(s.perms[p.StageID], p)
	}

	s.roles = make(map[int64]*entity.Role, len(s.Roles))
	for i := range s.Roles {
		s.roles[s.Roles[i].ID] = &s.Roles[i]
	}
}

// Stage returns the stage with the given id if it belongs to this workflow
func (s *Snapshot) Stage(id int64) (*entity.Stage, bool) {
	st, ok := s.stagesByID[id]
	return st, ok
}

// StageByName returns the stage with the given name
func (s *Snapshot) StageByName(name string) (*entity.Stage, bool) {
	st, ok := s.stagesByName[name]
	return st, ok
}

// InitialStage returns the workflow's initial stage
func (s *Snapshot) InitialStage() (*entity.Stage, bool) {
	for i := range s.Stages {
		if s.Stages[i].IsInitial {
			return &s.Stages[i], true
		}
	}
	return nil, false
}

// Outgoing returns the transitions leaving a stage, ordered by id
func (s *Snapshot) Outgoing(stageID int64) []*entity.Transition {
	return s.outgoing[stageID]
}

// Transition returns the edge between two stages
func (s *Snapshot) Transition(fromID, toID int64) (*entity.Transition, bool) {
	t, ok := s.edges[[2]int64{fromID, toID}]
	return t, ok
}

// StagePermissions returns the permissions of a stage, ordered by id
func (s *Snapshot) StagePermissions(stageID int64) []*entity.StagePermission {
	return s.perms[stageID]
}

// CanProcess reports whether the role holds can_process on the stage
func (s *Snapshot) CanProcess(stageID int64, roleID *int64) bool {
	if roleID == nil {
		return false
	}
	for _, p := range s.perms[stageID] {
		if p.CanProcess && p.RoleID == *roleID {
			return true
		}
	}
	return false
}

// HasProcessor reports whether any role may process the stage
func (s *Snapshot) HasProcessor(stageID int64) bool {
	for _, p := range s.perms[stageID] {
		if p.CanProcess {
			return true
		}
	}
	return false
}

// ProcessorRole returns the role of the first can_process permission on the stage
func (s *Snapshot) ProcessorRole(stageID int64) (*entity.Role, bool) {
	for _, p := range s.perms[stageID] {
		if !p.CanProcess {
			continue
		}
		if r, ok := s.roles[p.RoleID]; ok {
			return r, true
		}
		return &entity.Role{ID: p.RoleID, Precedence: DefaultRolePrecedence}, true
	}
	return nil, false
}

// Role returns a role referenced by the snapshot
func (s *Snapshot) Role(id int64) (*entity.Role, bool) {
	r, ok := s.roles[id]
	return r, ok
}
