package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/catalog"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/internal/infrastructure/report"
)

// Version is reported by the health check; set with -ldflags at build time
var Version = "dev"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger *zap.Logger) *Handlers {
	return &Handlers{deps: deps, logger: logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateApplicationRequest is the body of POST /api/applications/:type
type CreateApplicationRequest struct {
	Workflow string         `json:"workflow"`
	Payload  map[string]any `json:"payload"`
	Remarks  string         `json:"remarks" binding:"max=1000"`
}

// ListApplicationsRequest represents query parameters for listing applications
type ListApplicationsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// RemarksRequest is the body of submit
type RemarksRequest struct {
	Remarks string `json:"remarks" binding:"max=1000"`
}

// AdvanceRequest is the body of POST .../advance/:stage_id
type AdvanceRequest struct {
	Context map[string]any `json:"context"`
	Remarks string         `json:"remarks" binding:"max=1000"`
}

// RaiseObjectionRequest is the body of POST .../raise-objection
type RaiseObjectionRequest struct {
	Objections []entity.ObjectionItem `json:"objections" binding:"required,min=1,dive"`
	// TargetStageID is optional; the paired objection stage is used when zero
	TargetStageID int64  `json:"target_stage_id"`
	Remarks       string `json:"remarks" binding:"max=1000"`
}

// ResolveObjectionsRequest is the body of POST .../resolve-objections
type ResolveObjectionsRequest struct {
	ObjectionIDs  []int64        `json:"objection_ids"`
	UpdatedFields map[string]any `json:"updated_fields"`
	Remarks       string         `json:"remarks" binding:"max=1000"`
}

// NextStageResponse is one entry of GET .../next-stages
type NextStageResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	})
}

func appRef(c *gin.Context) (entity.AppRef, bool) {
	id, valid := paramID(c, "id")
	if !valid {
		return entity.AppRef{}, false
	}
	return entity.AppRef{Type: c.Param("type"), ID: id}, true
}

// respondView renders the application as the caller sees it
func (h *Handlers) respondView(c *gin.Context, status int, ref entity.AppRef) {
	view, err := h.deps.Workflow.View(c.Request.Context(), ref, currentUser(c))
	if err != nil {
		h.fail(c, err, "failed to load application")
		return
	}
	ok(c, status, view)
}

// CreateApplication handles POST /api/applications/:type
func (h *Handlers) CreateApplication(c *gin.Context) {
	var req CreateApplicationRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.deps.Workflow.CreateApplication(c.Request.Context(), c.Param("type"), req.Workflow, currentUser(c), req.Payload, req.Remarks)
	if err != nil {
		h.fail(c, err, "failed to create application")
		return
	}
	h.respondView(c, http.StatusCreated, result.Application.Ref())
}

// ListApplications handles GET /api/applications/:type
func (h *Handlers) ListApplications(c *gin.Context) {
	var req ListApplicationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	records, err := h.deps.Workflow.List(c.Request.Context(), c.Param("type"), req.Limit, req.Offset)
	if err != nil {
		h.fail(c, err, "failed to list applications")
		return
	}
	ok(c, http.StatusOK, records)
}

// GetApplication handles GET /api/applications/:type/:id
func (h *Handlers) GetApplication(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}
	h.respondView(c, http.StatusOK, ref)
}

// DeleteApplication handles DELETE /api/applications/:type/:id.
// Only the applicant or a catalog manager may delete.
func (h *Handlers) DeleteApplication(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	user := currentUser(c)

	rec, err := h.deps.Workflow.Get(ctx, ref)
	if err != nil {
		h.fail(c, err, "failed to load application")
		return
	}
	if rec.ApplicantID != user.ID && !catalog.CanManage(user) {
		h.fail(c, domainwf.ErrForbidden, "")
		return
	}

	if err := h.deps.Workflow.Delete(ctx, ref); err != nil {
		h.fail(c, err, "failed to delete application")
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": ref})
}

// NextStages handles GET /api/applications/:type/:id/next-stages
func (h *Handlers) NextStages(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}

	next, err := h.deps.Workflow.GetNextStages(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, err, "failed to list next stages")
		return
	}

	resp := make([]NextStageResponse, 0, len(next))
	for _, n := range next {
		resp = append(resp, NextStageResponse{ID: n.Stage.ID, Name: n.Stage.Name, Description: n.Stage.Description})
	}
	ok(c, http.StatusOK, resp)
}

// Submit handles POST /api/applications/:type/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}
	var req RemarksRequest
	if !h.bind(c, &req) {
		return
	}

	if _, err := h.deps.Workflow.Submit(c.Request.Context(), ref, currentUser(c), req.Remarks); err != nil {
		h.fail(c, err, "failed to submit application")
		return
	}
	h.respondView(c, http.StatusOK, ref)
}

// Advance handles POST /api/applications/:type/:id/advance/:stage_id
func (h *Handlers) Advance(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}
	stageID, valid := paramID(c, "stage_id")
	if !valid {
		return
	}
	var req AdvanceRequest
	if !h.bind(c, &req) {
		return
	}

	if _, err := h.deps.Workflow.Advance(c.Request.Context(), ref, currentUser(c), stageID, req.Context, req.Remarks); err != nil {
		h.fail(c, err, "failed to advance application")
		return
	}
	h.respondView(c, http.StatusOK, ref)
}

// RaiseObjection handles POST /api/applications/:type/:id/raise-objection
func (h *Handlers) RaiseObjection(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}
	var req RaiseObjectionRequest
	if !h.bind(c, &req) {
		return
	}

	if _, err := h.deps.Workflow.RaiseObjection(c.Request.Context(), ref, currentUser(c), req.TargetStageID, req.Objections, req.Remarks); err != nil {
		h.fail(c, err, "failed to raise objection")
		return
	}
	h.respondView(c, http.StatusOK, ref)
}

// ResolveObjections handles POST /api/applications/:type/:id/resolve-objections
func (h *Handlers) ResolveObjections(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}
	var req ResolveObjectionsRequest
	if !h.bind(c, &req) {
		return
	}

	if _, err := h.deps.Workflow.ResolveObjections(c.Request.Context(), ref, currentUser(c), req.ObjectionIDs, req.UpdatedFields, req.Remarks); err != nil {
		h.fail(c, err, "failed to resolve objections")
		return
	}
	h.respondView(c, http.StatusOK, ref)
}

// History handles GET /api/applications/:type/:id/history
func (h *Handlers) History(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}

	hist, err := h.deps.Workflow.History(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, err, "failed to load history")
		return
	}
	ok(c, http.StatusOK, hist)
}

// HistoryWorkbook handles GET /api/applications/:type/:id/history.xlsx
func (h *Handlers) HistoryWorkbook(c *gin.Context) {
	ref, valid := appRef(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	hist, err := h.deps.Workflow.History(ctx, ref)
	if err != nil {
		h.fail(c, err, "failed to load history")
		return
	}
	labels, err := h.labels(c, ref)
	if err != nil {
		h.fail(c, err, "failed to load catalog")
		return
	}

	var buf bytes.Buffer
	if err := h.deps.Exporter.Export(&buf, hist, labels); err != nil {
		h.fail(c, err, "failed to export history")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%d-history.xlsx"`, ref.Type, ref.ID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handlers) labels(c *gin.Context, ref entity.AppRef) (report.Labels, error) {
	ctx := c.Request.Context()
	labels := report.Labels{Stages: map[int64]string{}, Roles: map[int64]string{}}

	rec, err := h.deps.Workflow.Get(ctx, ref)
	if err != nil {
		return labels, err
	}
	snap, err := h.deps.Catalog.Snapshot(ctx, rec.WorkflowID)
	if err != nil {
		return labels, err
	}
	for _, st := range snap.Stages {
		labels.Stages[st.ID] = st.Name
	}
	roles, err := h.deps.Catalog.ListRoles(ctx)
	if err != nil {
		return labels, err
	}
	for _, r := range roles {
		labels.Roles[r.ID] = r.Name
	}
	return labels, nil
}
