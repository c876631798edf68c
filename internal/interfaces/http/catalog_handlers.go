package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/excise-workflow/internal/domain/entity"
)

// The catalog endpoints share one shape: bind, call, render.

func (h *Handlers) list(c *gin.Context, msg string, fn func(ctx context.Context) (interface{}, error)) {
	data, err := fn(c.Request.Context())
	if err != nil {
		h.fail(c, err, msg)
		return
	}
	ok(c, http.StatusOK, data)
}

func (h *Handlers) byID(c *gin.Context, msg string, fn func(ctx context.Context, id int64) (interface{}, error)) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	data, err := fn(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, msg)
		return
	}
	ok(c, http.StatusOK, data)
}

// create binds body into v and stores it
func (h *Handlers) create(c *gin.Context, v interface{}, msg string, fn func(ctx context.Context) error) {
	if !h.bind(c, v) {
		return
	}
	if err := fn(c.Request.Context()); err != nil {
		h.fail(c, err, msg)
		return
	}
	ok(c, http.StatusCreated, v)
}

// update binds body into v, lets setID apply the path id, and stores it
func (h *Handlers) update(c *gin.Context, v interface{}, setID func(int64), msg string, fn func(ctx context.Context) error) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if !h.bind(c, v) {
		return
	}
	setID(id)
	if err := fn(c.Request.Context()); err != nil {
		h.fail(c, err, msg)
		return
	}
	ok(c, http.StatusOK, v)
}

func (h *Handlers) remove(c *gin.Context, msg string, fn func(ctx context.Context, id int64) error) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		h.fail(c, err, msg)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": id})
}

// ListWorkflows handles GET /api/catalog/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	h.list(c, "failed to list workflows", func(ctx context.Context) (interface{}, error) {
		return h.deps.Catalog.ListWorkflows(ctx)
	})
}

// GetWorkflow handles GET /api/catalog/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	h.byID(c, "failed to get workflow", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.GetWorkflow(ctx, id)
	})
}

// CreateWorkflow handles POST /api/catalog/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var wf entity.Workflow
	h.create(c, &wf, "failed to create workflow", func(ctx context.Context) error {
		return h.deps.Catalog.CreateWorkflow(ctx, &wf)
	})
}

// UpdateWorkflow handles PUT /api/catalog/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	var wf entity.Workflow
	h.update(c, &wf, func(id int64) { wf.ID = id }, "failed to update workflow", func(ctx context.Context) error {
		return h.deps.Catalog.UpdateWorkflow(ctx, &wf)
	})
}

// DeleteWorkflow handles DELETE /api/catalog/workflows/:id
func (h *Handlers) DeleteWorkflow(c *gin.Context) {
	h.remove(c, "failed to delete workflow", h.deps.Catalog.DeleteWorkflow)
}

// WorkflowSnapshot handles GET /api/catalog/workflows/:id/snapshot
func (h *Handlers) WorkflowSnapshot(c *gin.Context) {
	h.byID(c, "failed to load workflow", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.Snapshot(ctx, id)
	})
}

// CheckWorkflow handles GET /api/catalog/workflows/:id/check
func (h *Handlers) CheckWorkflow(c *gin.Context) {
	h.byID(c, "failed to check workflow", func(ctx context.Context, id int64) (interface{}, error) {
		problems, err := h.deps.Catalog.Check(ctx, id)
		if err != nil {
			return nil, err
		}
		msgs := make([]string, 0, len(problems))
		for _, p := range problems {
			msgs = append(msgs, p.String())
		}
		return gin.H{"valid": len(msgs) == 0, "problems": msgs}, nil
	})
}

// ListStages handles GET /api/catalog/workflows/:id/stages
func (h *Handlers) ListStages(c *gin.Context) {
	h.byID(c, "failed to list stages", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.ListStages(ctx, id)
	})
}

// ListTransitions handles GET /api/catalog/workflows/:id/transitions
func (h *Handlers) ListTransitions(c *gin.Context) {
	h.byID(c, "failed to list transitions", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.ListTransitions(ctx, id)
	})
}

// GetStage handles GET /api/catalog/stages/:id
func (h *Handlers) GetStage(c *gin.Context) {
	h.byID(c, "failed to get stage", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.GetStage(ctx, id)
	})
}

// CreateStage handles POST /api/catalog/stages
func (h *Handlers) CreateStage(c *gin.Context) {
	var st entity.Stage
	h.create(c, &st, "failed to create stage", func(ctx context.Context) error {
		return h.deps.Catalog.CreateStage(ctx, &st)
	})
}

// UpdateStage handles PUT /api/catalog/stages/:id
func (h *Handlers) UpdateStage(c *gin.Context) {
	var st entity.Stage
	h.update(c, &st, func(id int64) { st.ID = id }, "failed to update stage", func(ctx context.Context) error {
		return h.deps.Catalog.UpdateStage(ctx, &st)
	})
}

// DeleteStage handles DELETE /api/catalog/stages/:id
func (h *Handlers) DeleteStage(c *gin.Context) {
	h.remove(c, "failed to delete stage", h.deps.Catalog.DeleteStage)
}

// ListTransitionsFrom handles GET /api/catalog/stages/:id/transitions
func (h *Handlers) ListTransitionsFrom(c *gin.Context) {
	h.byID(c, "failed to list transitions", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.ListTransitionsFrom(ctx, id)
	})
}

// ListPermissions handles GET /api/catalog/stages/:id/permissions
func (h *Handlers) ListPermissions(c *gin.Context) {
	h.byID(c, "failed to list permissions", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.ListPermissions(ctx, id)
	})
}

// GetTransition handles GET /api/catalog/transitions/:id
func (h *Handlers) GetTransition(c *gin.Context) {
	h.byID(c, "failed to get transition", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.GetTransition(ctx, id)
	})
}

// CreateTransition handles POST /api/catalog/transitions
func (h *Handlers) CreateTransition(c *gin.Context) {
	var t entity.Transition
	h.create(c, &t, "failed to create transition", func(ctx context.Context) error {
		return h.deps.Catalog.CreateTransition(ctx, &t)
	})
}

// UpdateTransition handles PUT /api/catalog/transitions/:id
func (h *Handlers) UpdateTransition(c *gin.Context) {
	var t entity.Transition
	h.update(c, &t, func(id int64) { t.ID = id }, "failed to update transition", func(ctx context.Context) error {
		return h.deps.Catalog.UpdateTransition(ctx, &t)
	})
}

// DeleteTransition handles DELETE /api/catalog/transitions/:id
func (h *Handlers) DeleteTransition(c *gin.Context) {
	h.remove(c, "failed to delete transition", h.deps.Catalog.DeleteTransition)
}

// GetPermission handles GET /api/catalog/permissions/:id
func (h *Handlers) GetPermission(c *gin.Context) {
	h.byID(c, "failed to get permission", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.GetPermission(ctx, id)
	})
}

// CreatePermission handles POST /api/catalog/permissions
func (h *Handlers) CreatePermission(c *gin.Context) {
	var p entity.StagePermission
	h.create(c, &p, "failed to create permission", func(ctx context.Context) error {
		return h.deps.Catalog.CreatePermission(ctx, &p)
	})
}

// UpdatePermission handles PUT /api/catalog/permissions/:id
func (h *Handlers) UpdatePermission(c *gin.Context) {
	var p entity.StagePermission
	h.update(c, &p, func(id int64) { p.ID = id }, "failed to update permission", func(ctx context.Context) error {
		return h.deps.Catalog.UpdatePermission(ctx, &p)
	})
}

// DeletePermission handles DELETE /api/catalog/permissions/:id
func (h *Handlers) DeletePermission(c *gin.Context) {
	h.remove(c, "failed to delete permission", h.deps.Catalog.DeletePermission)
}

// ListRoles handles GET /api/catalog/roles
func (h *Handlers) ListRoles(c *gin.Context) {
	h.list(c, "failed to list roles", func(ctx context.Context) (interface{}, error) {
		return h.deps.Catalog.ListRoles(ctx)
	})
}

// GetRole handles GET /api/catalog/roles/:id
func (h *Handlers) GetRole(c *gin.Context) {
	h.byID(c, "failed to get role", func(ctx context.Context, id int64) (interface{}, error) {
		return h.deps.Catalog.GetRole(ctx, id)
	})
}

// CreateRole handles POST /api/catalog/roles
func (h *Handlers) CreateRole(c *gin.Context) {
	var r entity.Role
	h.create(c, &r, "failed to create role", func(ctx context.Context) error {
		return h.deps.Catalog.CreateRole(ctx, &r)
	})
}

// UpdateRole handles PUT /api/catalog/roles/:id
func (h *Handlers) UpdateRole(c *gin.Context) {
	var r entity.Role
	h.update(c, &r, func(id int64) { r.ID = id }, "failed to update role", func(ctx context.Context) error {
		return h.deps.Catalog.UpdateRole(ctx, &r)
	})
}

// DeleteRole handles DELETE /api/catalog/roles/:id
func (h *Handlers) DeleteRole(c *gin.Context) {
	h.remove(c, "failed to delete role", h.deps.Catalog.DeleteRole)
}
