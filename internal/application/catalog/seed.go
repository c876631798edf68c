package catalog

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// Document is a YAML catalog seed
type Document struct {
	Roles     []RoleDef     `yaml:"roles"`
	Workflows []WorkflowDef `yaml:"workflows"`
}

// RoleDef declares a role
type RoleDef struct {
	Name               string `yaml:"name"`
	Precedence         int    `yaml:"precedence"`
	CanManageWorkflows bool   `yaml:"can_manage_workflows"`
}

// WorkflowDef declares a workflow with its stages
type WorkflowDef struct {
	Name                   string     `yaml:"name"`
	Description            string     `yaml:"description"`
	IncludeUnscopedActions bool       `yaml:"include_unscoped_actions"`
	Stages                 []StageDef `yaml:"stages"`
}

// StageDef declares a stage, who may process it and where it leads
type StageDef struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Initial     bool            `yaml:"initial"`
	Final       bool            `yaml:"final"`
	Kind        string          `yaml:"kind"`
	ForwardTo   string          `yaml:"forward_to"`
	ProcessedBy []string        `yaml:"processed_by"`
	VisibleTo   []string        `yaml:"visible_to"`
	Transitions []TransitionDef `yaml:"transitions"`
}

// TransitionDef declares an outgoing edge
type TransitionDef struct {
	To        string                 `yaml:"to"`
	Condition map[string]interface{} `yaml:"condition"`
}

// ImportReport counts what an import created or changed
type ImportReport struct {
	Workflows   int `json:"workflows"`
	Stages      int `json:"stages"`
	Transitions int `json:"transitions"`
	Permissions int `json:"permissions"`
	Roles       int `json:"roles"`
}

// ParseDocument decodes a YAML seed
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog document: %w", err)
	}
	for wi := range doc.Workflows {
		for si := range doc.Workflows[wi].Stages {
			for ti, t := range doc.Workflows[wi].Stages[si].Transitions {
				doc.Workflows[wi].Stages[si].Transitions[ti].Condition = stringKeys(t.Condition)
			}
		}
	}
	return &doc, nil
}

// LoadDocument reads and decodes a YAML seed file
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseDocument(data)
}

// stringKeys converts the map[interface{}]interface{} values yaml.v2
// produces for nested maps
func stringKeys(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, vv := range x {
			out[fmt.Sprint(k)] = normalizeValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, vv := range x {
			out[i] = normalizeValue(vv)
		}
		return out
	default:
		return v
	}
}

// Build turns every workflow of the document into a snapshot, validating
// the structure without touching a store
func (d *Document) Build() ([]*domainwf.Snapshot, error) {
	snaps := make([]*domainwf.Snapshot, 0, len(d.Workflows))
	for _, wf := range d.Workflows {
		b := domainwf.NewBuilder(wf.Name).
			Describe(wf.Description).
			IncludeUnscopedActions(wf.IncludeUnscopedActions)
		for _, r := range d.Roles {
			b.Role(r.Name, r.Precedence)
		}
		for _, st := range wf.Stages {
			b.Configure(st.Name)
		}
		for _, st := range wf.Stages {
			cfg := b.Configure(st.Name).Describe(st.Description)
			if st.Initial {
				cfg.Initial()
			}
			if st.Final {
				cfg.Final()
			}
			if st.Kind != "" {
				cfg.Kind(domainwf.StageKind(st.Kind))
			}
			if st.ForwardTo != "" {
				cfg.ForwardTo(domainwf.ForwardPolicy(st.ForwardTo))
			}
			cfg.ProcessedBy(st.ProcessedBy...).VisibleTo(st.VisibleTo...)
			for _, t := range st.Transitions {
				cfg.PermitIf(t.To, t.Condition)
			}
		}
		snap, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Check builds and validates every workflow in the document
func (d *Document) Check() ([]Problem, error) {
	if err := d.undeclared(); err != nil {
		return nil, err
	}
	snaps, err := d.Build()
	if err != nil {
		return nil, err
	}
	var problems []Problem
	for _, snap := range snaps {
		problems = append(problems, Validate(snap)...)
	}
	return problems, nil
}

// undeclared rejects transitions to stages the workflow does not declare
func (d *Document) undeclared() error {
	fields := map[string]string{}
	for _, wf := range d.Workflows {
		if wf.Name == "" {
			fields["workflows"] = "workflow name is required"
		}
		names := map[string]bool{}
		for _, st := range wf.Stages {
			names[st.Name] = true
		}
		for _, st := range wf.Stages {
			for _, t := range st.Transitions {
				if !names[t.To] {
					fields[wf.Name+"/"+st.Name] = fmt.Sprintf("transition to undeclared stage %q", t.To)
				}
			}
		}
	}
	if len(fields) > 0 {
		return &domainwf.ValidationError{Fields: fields}
	}
	return nil
}

// Import upserts the document. Roles, workflows and stages are matched by
// name, transitions by their endpoints and permissions by (stage, role).
// Nothing is removed. The document is checked first and rejected when it
// has problems.
func (s *catalogServiceImpl) Import(ctx context.Context, doc *Document) (*ImportReport, error) {
	problems, err := doc.Check()
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		fields := make(map[string]string, len(problems))
		for _, p := range problems {
			fields[p.Workflow+"/"+p.Stage] = p.Message
		}
		return nil, &domainwf.ValidationError{Fields: fields}
	}

	report := &ImportReport{}
	var touched []int64
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		roles, err := s.importRoles(txCtx, doc.Roles, report)
		if err != nil {
			return err
		}
		for _, def := range doc.Workflows {
			id, err := s.importWorkflow(txCtx, def, roles, report)
			if err != nil {
				return fmt.Errorf("workflow %q: %w", def.Name, err)
			}
			touched = append(touched, id)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Catalog import failed", zap.Error(err))
		return nil, err
	}

	s.changed(ctx, "catalog.imported", touched...)
	s.logger.Info("Catalog imported",
		zap.Int("workflows", report.Workflows),
		zap.Int("stages", report.Stages),
		zap.Int("transitions", report.Transitions),
		zap.Int("permissions", report.Permissions),
		zap.Int("roles", report.Roles))
	return report, nil
}

func (s *catalogServiceImpl) importRoles(ctx context.Context, defs []RoleDef, report *ImportReport) (map[string]*entity.Role, error) {
	for _, def := range defs {
		existing, err := s.repos.Roles.GetByName(ctx, def.Name)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			if err := s.repos.Roles.Create(ctx, &entity.Role{
				Name:               def.Name,
				Precedence:         def.Precedence,
				CanManageWorkflows: def.CanManageWorkflows,
			}); err != nil {
				return nil, err
			}
			report.Roles++
			continue
		}
		if existing.Precedence != def.Precedence || existing.CanManageWorkflows != def.CanManageWorkflows {
			existing.Precedence = def.Precedence
			existing.CanManageWorkflows = def.CanManageWorkflows
			if err := s.repos.Roles.Update(ctx, existing); err != nil {
				return nil, err
			}
			report.Roles++
		}
	}

	all, err := s.repos.Roles.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*entity.Role, len(all))
	for _, r := range all {
		byName[r.Name] = r
	}
	return byName, nil
}

func (s *catalogServiceImpl) importWorkflow(ctx context.Context, def WorkflowDef, roles map[string]*entity.Role, report *ImportReport) (int64, error) {
	wf, err := s.repos.Workflows.GetByName(ctx, def.Name)
	if err != nil {
		return 0, err
	}
	if wf == nil {
		wf = &entity.Workflow{Name: def.Name, Description: def.Description, IncludeUnscopedActions: def.IncludeUnscopedActions}
		if err := s.repos.Workflows.Create(ctx, wf); err != nil {
			return 0, err
		}
		report.Workflows++
	} else if wf.Description != def.Description || wf.IncludeUnscopedActions != def.IncludeUnscopedActions {
		wf.Description = def.Description
		wf.IncludeUnscopedActions = def.IncludeUnscopedActions
		if err := s.repos.Workflows.Update(ctx, wf); err != nil {
			return 0, err
		}
		report.Workflows++
	}

	stages, err := s.importStages(ctx, wf.ID, def.Stages, report)
	if err != nil {
		return 0, err
	}

	for _, sd := range def.Stages {
		st := stages[sd.Name]
		if err := s.importPermissions(ctx, st, sd, roles, report); err != nil {
			return 0, err
		}
	}

	existing, err := s.repos.Transitions.ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return 0, err
	}
	edges := make(map[[2]int64]*entity.Transition, len(existing))
	for _, t := range existing {
		edges[[2]int64{t.FromStageID, t.ToStageID}] = t
	}
	for _, sd := range def.Stages {
		from := stages[sd.Name]
		for _, td := range sd.Transitions {
			to := stages[td.To]
			cond := td.Condition
			if t, ok := edges[[2]int64{from.ID, to.ID}]; ok {
				if sameCondition(t.Condition, cond) {
					continue
				}
				t.Condition = cond
				if err := s.repos.Transitions.Update(ctx, t); err != nil {
					return 0, err
				}
				report.Transitions++
				continue
			}
			t := &entity.Transition{WorkflowID: wf.ID, FromStageID: from.ID, ToStageID: to.ID, Condition: cond}
			if err := s.repos.Transitions.Create(ctx, t); err != nil {
				return 0, err
			}
			report.Transitions++
		}
	}
	return wf.ID, nil
}

func (s *catalogServiceImpl) importStages(ctx context.Context, workflowID int64, defs []StageDef, report *ImportReport) (map[string]*entity.Stage, error) {
	existing, err := s.repos.Stages.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*entity.Stage, len(existing)+len(defs))
	for _, st := range existing {
		byName[st.Name] = st
	}

	// clear a moved initial flag first so the single-initial index holds
	for _, sd := range defs {
		if st, ok := byName[sd.Name]; ok && st.IsInitial && !sd.Initial {
			st.IsInitial = false
			if err := s.repos.Stages.Update(ctx, st); err != nil {
				return nil, err
			}
		}
	}

	for _, sd := range defs {
		want := entity.Stage{
			WorkflowID:  workflowID,
			Name:        sd.Name,
			Description: sd.Description,
			IsInitial:   sd.Initial,
			IsFinal:     sd.Final,
			Kind:        sd.Kind,
			ForwardTo:   sd.ForwardTo,
		}
		st, ok := byName[sd.Name]
		if !ok {
			st = &want
			if err := s.repos.Stages.Create(ctx, st); err != nil {
				return nil, err
			}
			byName[sd.Name] = st
			report.Stages++
			continue
		}
		want.ID = st.ID
		if *st == want {
			continue
		}
		*st = want
		if err := s.repos.Stages.Update(ctx, st); err != nil {
			return nil, err
		}
		report.Stages++
	}
	return byName, nil
}

func (s *catalogServiceImpl) importPermissions(ctx context.Context, st *entity.Stage, def StageDef, roles map[string]*entity.Role, report *ImportReport) error {
	existing, err := s.repos.Permissions.ListByStage(ctx, st.ID)
	if err != nil {
		return err
	}
	byRole := make(map[int64]*entity.StagePermission, len(existing))
	for _, p := range existing {
		byRole[p.RoleID] = p
	}

	grant := func(name string, canProcess bool) error {
		role, ok := roles[name]
		if !ok {
			return domainwf.Invalid(st.Name, fmt.Sprintf("unknown role %q", name))
		}
		if p, ok := byRole[role.ID]; ok {
			if p.CanProcess == canProcess {
				return nil
			}
			p.CanProcess = canProcess
			report.Permissions++
			return s.repos.Permissions.Update(ctx, p)
		}
		p := &entity.StagePermission{StageID: st.ID, RoleID: role.ID, CanProcess: canProcess}
		if err := s.repos.Permissions.Create(ctx, p); err != nil {
			return err
		}
		byRole[role.ID] = p
		report.Permissions++
		return nil
	}

	for _, name := range def.ProcessedBy {
		if err := grant(name, true); err != nil {
			return err
		}
	}
	for _, name := range def.VisibleTo {
		if err := grant(name, false); err != nil {
			return err
		}
	}
	return nil
}

func sameCondition(a, b map[string]interface{}) bool {
	ca := domainwf.ParseCondition(a).Map()
	cb := domainwf.ParseCondition(b).Map()
	return fmt.Sprint(ca) == fmt.Sprint(cb)
}
