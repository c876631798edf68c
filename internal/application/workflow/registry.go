package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/excise-workflow/internal/application/port"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/pkg/utils"
)

// RecordSpec describes one concrete application type
type RecordSpec struct {
	// Tag is the stable type identifier stored in the log tables
	Tag string
	// Table holds the rows of this type
	Table string
	// Workflow is the name of the workflow new records start in
	Workflow string
	// Flags lists the typed hook flags the type exposes
	Flags []string
	// Fields maps payload fields to validator rules
	Fields map[string]string
}

// HasFlag reports whether the type exposes the named flag
func (s RecordSpec) HasFlag(name string) bool {
	for _, f := range s.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// DefaultRecordSpecs returns the built-in application types
func DefaultRecordSpecs() []RecordSpec {
	return []RecordSpec{
		{
			Tag:      entity.TypeLicenseApplication,
			Table:    "license_applications",
			Workflow: "License Approval",
			Flags:    []string{entity.FlagFeeCalculated, entity.FlagLicenseFeePaid},
			Fields: map[string]string{
				"establishment_name":  "required,min=3,max=200",
				"pan":                 "required,pan",
				"email":               "required,email",
				"mobile_number":       "required,mobile",
				"address":             "required,min=5",
				"license_category":    "required",
				entity.FieldFeeAmount: "gt=0",
			},
		},
		{
			Tag:      entity.TypeHologramRequest,
			Table:    "hologram_requests",
			Workflow: "Hologram Request",
			Fields: map[string]string{
				"quantity":       "required,gt=0",
				"hologram_type":  "required",
				"usage_date":     "required",
				"brand_name":     "required",
				"pack_size_ml":   "gt=0",
				"license_number": "required",
			},
		},
		{
			Tag:      entity.TypeHologramProcurement,
			Table:    "hologram_procurements",
			Workflow: "Hologram Procurement",
			Flags:    []string{entity.FlagFeeCalculated, entity.FlagLicenseFeePaid},
			Fields: map[string]string{
				"quantity":            "required,gt=0",
				"hologram_type":       "required",
				"license_number":      "required",
				entity.FieldFeeAmount: "gt=0",
			},
		},
		{
			Tag:      entity.TypeENACancellation,
			Table:    "ena_cancellations",
			Workflow: "ENA Cancellation",
			Fields: map[string]string{
				"permit_number": "required",
				"reason":        "required,min=5",
			},
		},
		{
			Tag:      entity.TypeENARevalidation,
			Table:    "ena_revalidations",
			Workflow: "ENA Revalidation",
			Fields: map[string]string{
				"permit_number": "required",
				"reason":        "required,min=5",
				"new_validity":  "required",
			},
		},
		{
			Tag:      entity.TypeTransitPermit,
			Table:    "transit_permits",
			Workflow: "Transit Permit",
			Fields: map[string]string{
				"vehicle_number": "required,min=4,max=15",
				"destination":    "required",
				"quantity":       "required,gt=0",
				"gstin":          "gstin",
			},
		},
	}
}

type registryEntry struct {
	spec RecordSpec
	repo port.RecordRepository
}

// Registry maps application type tags to their record stores. It is the
// port.ApplicationLoader used by the workflow service.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]registryEntry
	txns       port.TransactionLogRepository
	objections port.ObjectionRepository
	validate   *validator.Validate
}

// NewRegistry creates an empty registry
func NewRegistry(txns port.TransactionLogRepository, objections port.ObjectionRepository) *Registry {
	return &Registry{
		entries:    make(map[string]registryEntry),
		txns:       txns,
		objections: objections,
		validate:   utils.NewValidator(),
	}
}

// Register adds an application type. The repository must serve spec.Tag.
func (r *Registry) Register(spec RecordSpec, repo port.RecordRepository) error {
	if spec.Tag == "" {
		return fmt.Errorf("application type tag is required")
	}
	if repo.Tag() != spec.Tag {
		return fmt.Errorf("repository serves %q, not %q", repo.Tag(), spec.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Tag]; exists {
		return fmt.Errorf("application type %q already registered", spec.Tag)
	}
	r.entries[spec.Tag] = registryEntry{spec: spec, repo: repo}
	return nil
}

// Spec returns the spec registered for a tag
func (r *Registry) Spec(tag string) (RecordSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tag]
	return e.spec, ok
}

// Tags returns the registered tags in sorted order
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.entries))
	for t := range r.entries {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func (r *Registry) entry(tag string) (registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tag]
	if !ok {
		return registryEntry{}, domainwf.NotFound("application type", tag)
	}
	return e, nil
}

// Load implements port.ApplicationLoader
func (r *Registry) Load(ctx context.Context, ref entity.AppRef) (port.Application, error) {
	return r.load(ctx, ref, false)
}

// LoadForUpdate implements port.ApplicationLoader
func (r *Registry) LoadForUpdate(ctx context.Context, ref entity.AppRef) (port.Application, error) {
	return r.load(ctx, ref, true)
}

func (r *Registry) load(ctx context.Context, ref entity.AppRef, lock bool) (port.Application, error) {
	e, err := r.entry(ref.Type)
	if err != nil {
		return nil, err
	}

	var rec *entity.ApplicationRecord
	if lock {
		rec, err = e.repo.GetForUpdate(ctx, ref.ID)
	} else {
		rec, err = e.repo.GetByID(ctx, ref.ID)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domainwf.NotFound("application", ref)
	}
	return r.wrap(e, rec), nil
}

// New builds an unsaved application of the given type
func (r *Registry) New(tag string, workflowID, stageID, applicantID int64) (port.Application, error) {
	e, err := r.entry(tag)
	if err != nil {
		return nil, err
	}

	flags := make(map[string]bool, len(e.spec.Flags))
	for _, f := range e.spec.Flags {
		flags[f] = false
	}
	rec := &entity.ApplicationRecord{
		Type:           tag,
		WorkflowID:     workflowID,
		CurrentStageID: stageID,
		ApplicantID:    applicantID,
		Payload:        map[string]any{},
		Flags:          flags,
	}
	return r.wrap(e, rec), nil
}

// List returns records of one type newest first
func (r *Registry) List(ctx context.Context, tag string, limit, offset int) ([]port.Application, error) {
	e, err := r.entry(tag)
	if err != nil {
		return nil, err
	}
	recs, err := e.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	apps := make([]port.Application, 0, len(recs))
	for _, rec := range recs {
		apps = append(apps, r.wrap(e, rec))
	}
	return apps, nil
}

// Delete removes a record and its logs. Callers run it inside a unit of work.
func (r *Registry) Delete(ctx context.Context, ref entity.AppRef) error {
	e, err := r.entry(ref.Type)
	if err != nil {
		return err
	}
	if err := r.txns.DeleteByApplication(ctx, ref); err != nil {
		return err
	}
	if err := r.objections.DeleteByApplication(ctx, ref); err != nil {
		return err
	}
	return e.repo.Delete(ctx, ref.ID)
}

func (r *Registry) wrap(e registryEntry, rec *entity.ApplicationRecord) *recordApplication {
	return &recordApplication{
		rec:        rec,
		spec:       e.spec,
		repo:       e.repo,
		txns:       r.txns,
		objections: r.objections,
		validate:   r.validate,
	}
}

var _ port.ApplicationLoader = (*Registry)(nil)
