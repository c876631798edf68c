package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/catalog"
	"github.com/garyjia/excise-workflow/internal/application/workflow"
	"github.com/garyjia/excise-workflow/internal/auth"
	"github.com/garyjia/excise-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
	"github.com/garyjia/excise-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/excise-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/excise-workflow/internal/infrastructure/report"
	"github.com/garyjia/excise-workflow/internal/testutil"
)

type apiFixture struct {
	router  http.Handler
	catalog catalog.Service
	issuer  *auth.Issuer
	roles   map[string]*entity.Role
	snap    *domainwf.Snapshot
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewDB(t)
	logger := zap.NewNop()

	roleRepo := repository.NewRoleRepository(db, logger)
	loader := repository.NewSnapshotLoader(db, logger)
	catalogSvc := catalog.NewService(catalog.Repositories{
		Workflows:   repository.NewWorkflowRepository(db, logger),
		Stages:      repository.NewStageRepository(db, logger),
		Transitions: repository.NewTransitionRepository(db, logger),
		Permissions: repository.NewPermissionRepository(db, logger),
		Roles:       roleRepo,
	}, loader, db, logger)

	doc, err := catalog.LoadDocument("../../../configs/workflows.yaml")
	require.NoError(t, err)
	_, err = catalogSvc.Import(ctx, doc)
	require.NoError(t, err)

	txns := repository.NewTransactionLogRepository(db, logger)
	objections := repository.NewObjectionRepository(db, logger)
	registry := workflow.NewRegistry(txns, objections)
	for _, spec := range workflow.DefaultRecordSpecs() {
		require.NoError(t, registry.Register(spec, repository.NewRecordRepository(db, spec.Tag, spec.Table, logger)))
	}

	recorder := metrics.NewRecorder(metrics.Config{Registry: prometheus.NewRegistry()})
	workflowSvc := workflow.NewService(registry, repository.NewWorkflowRepository(db, logger), loader,
		txns, objections, db, logger, workflow.WithObserver(recorder))

	issuer, err := auth.NewIssuer("test-secret", "excise", time.Hour)
	require.NoError(t, err)

	server := NewServer(DefaultServerConfig(), Dependencies{
		Workflow: workflowSvc,
		Catalog:  catalogSvc,
		Roles:    roleRepo,
		Issuer:   issuer,
		Exporter: report.NewHistoryExporter(logger),
		Metrics:  recorder.Handler(),
	}, logger)

	f := &apiFixture{router: server.Router(), catalog: catalogSvc, issuer: issuer, roles: map[string]*entity.Role{}}
	roles, err := catalogSvc.ListRoles(ctx)
	require.NoError(t, err)
	for _, r := range roles {
		f.roles[r.Name] = r
	}
	wf, err := catalogSvc.GetWorkflowByName(ctx, "License Approval")
	require.NoError(t, err)
	f.snap, err = catalogSvc.Snapshot(ctx, wf.ID)
	require.NoError(t, err)
	return f
}

func (f *apiFixture) token(t *testing.T, userID int64, role string) string {
	t.Helper()
	var roleID *int64
	if role != "" {
		r, ok := f.roles[role]
		require.True(t, ok, role)
		roleID = &r.ID
	}
	tok, err := f.issuer.Issue(userID, fmt.Sprintf("user%d", userID), roleID, false)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) stageID(t *testing.T, name string) int64 {
	t.Helper()
	st, ok := f.snap.StageByName(name)
	require.True(t, ok, name)
	return st.ID
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

type viewBody struct {
	ID               int64    `json:"id"`
	CurrentStage     int64    `json:"current_stage"`
	CurrentStageName string   `json:"current_stage_name"`
	AllowedActions   []string `json:"allowed_actions"`
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeView(t *testing.T, env envelope) viewBody {
	t.Helper()
	var v viewBody
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealthAndAuth(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec, _ = f.do(t, http.MethodGet, "/api/applications/licenseapplication", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/applications/licenseapplication", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ghostRole := int64(9999)
	ghost, err := f.issuer.Issue(5, "ghost", &ghostRole, false)
	require.NoError(t, err)
	rec, _ = f.do(t, http.MethodGet, "/api/applications/licenseapplication", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplicationLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	licensee := f.token(t, 1, "Licensee")
	clerk := f.token(t, 2, "Permit Section")
	officer := f.token(t, 3, "Officer In Charge")

	rec, env := f.do(t, http.MethodPost, "/api/applications/licenseapplication", licensee, map[string]any{
		"payload": map[string]any{"establishment_name": "Sunrise Distillers", "address": "Mill"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Details), "address")

	rec, env = f.do(t, http.MethodPost, "/api/applications/licenseapplication", licensee, map[string]any{
		"payload": map[string]any{"establishment_name": "Sunrise Distillers"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decodeView(t, env)
	assert.Equal(t, "draft", view.CurrentStageName)
	base := fmt.Sprintf("/api/applications/licenseapplication/%d", view.ID)

	rec, env = f.do(t, http.MethodPost, base+"/submit", licensee, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "level_1", decodeView(t, env).CurrentStageName)

	t.Run("next stages", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, base+"/next-stages", clerk, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var next []NextStageResponse
		require.NoError(t, json.Unmarshal(env.Data, &next))
		names := make([]string, 0, len(next))
		for _, n := range next {
			names = append(names, n.Name)
		}
		assert.ElementsMatch(t, []string{"level_1_objection", "level_2", "rejected"}, names)
	})

	t.Run("licensee cannot advance an officer stage", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, fmt.Sprintf("%s/advance/%d", base, f.stageID(t, "level_2")), licensee, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("objection round trip", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, base+"/raise-objection", clerk, map[string]any{"objections": []any{}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, env.Success)

		rec, env = f.do(t, http.MethodPost, base+"/raise-objection", clerk, map[string]any{
			"objections": []map[string]string{{"field": "address", "remarks": "Address missing"}},
			"remarks":    "Please complete the address",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "level_1_objection", decodeView(t, env).CurrentStageName)

		rec, env = f.do(t, http.MethodPost, base+"/resolve-objections", licensee, map[string]any{
			"updated_fields": map[string]any{"email": "owner@sunrise.example"},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, string(env.Details), "address")

		rec, env = f.do(t, http.MethodPost, base+"/resolve-objections", licensee, map[string]any{
			"updated_fields": map[string]any{"address": "12 Mill Road, Shillong"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "level_1", decodeView(t, env).CurrentStageName)
	})

	t.Run("condition failure", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, fmt.Sprintf("%s/advance/%d", base, f.stageID(t, "level_2")), clerk,
			map[string]any{"context": map[string]any{"action": "REJECT"}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, string(env.Details), `"key":"action"`)
	})

	rec, env = f.do(t, http.MethodPost, fmt.Sprintf("%s/advance/%d", base, f.stageID(t, "level_2")), clerk,
		map[string]any{"context": map[string]any{"action": "FORWARD"}, "remarks": "Scrutiny complete"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "level_2", decodeView(t, env).CurrentStageName)

	t.Run("advance errors", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, fmt.Sprintf("%s/advance/%d", base, f.stageID(t, "draft")), officer, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = f.do(t, http.MethodPost, base+"/advance/99999", officer, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec, _ = f.do(t, http.MethodPost, base+"/advance/abc", officer, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = f.do(t, http.MethodGet, "/api/applications/licenseapplication/424242", officer, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("history", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, base+"/history", officer, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var hist workflow.History
		require.NoError(t, json.Unmarshal(env.Data, &hist))
		require.NotEmpty(t, hist.Transactions)
		assert.Equal(t, "Scrutiny complete", hist.Transactions[0].Remarks)
		require.Len(t, hist.Objections, 1)
		assert.True(t, hist.Objections[0].IsResolved)

		rec, _ = f.do(t, http.MethodGet, base+"/history.xlsx", officer, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "history.xlsx")
		assert.NotZero(t, rec.Body.Len())
	})

	t.Run("list", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/api/applications/licenseapplication?limit=5", officer, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var records []entity.ApplicationRecord
		require.NoError(t, json.Unmarshal(env.Data, &records))
		assert.Len(t, records, 1)
	})

	t.Run("delete", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodDelete, base, clerk, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec, _ = f.do(t, http.MethodDelete, base, licensee, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec, _ = f.do(t, http.MethodGet, base, licensee, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `excise_workflow_operations_total{operation="submit",outcome="success"} 1`)
	})
}

func TestCatalogEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	licensee := f.token(t, 1, "Licensee")
	admin := f.token(t, 7, "IT Cell")

	rec, _ := f.do(t, http.MethodGet, "/api/catalog/workflows", licensee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/api/catalog/workflows", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var workflows []entity.Workflow
	require.NoError(t, json.Unmarshal(env.Data, &workflows))
	assert.Len(t, workflows, 6)

	rec, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/catalog/workflows/%d/check", f.snap.Workflow.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"problems":[]}`, string(env.Data))

	rec, env = f.do(t, http.MethodPost, "/api/catalog/roles", admin, map[string]any{"name": "Deputy Commissioner", "role_precedence": 35})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var role entity.Role
	require.NoError(t, json.Unmarshal(env.Data, &role))
	assert.NotZero(t, role.ID)

	rec, _ = f.do(t, http.MethodPut, fmt.Sprintf("/api/catalog/roles/%d", role.ID), admin, map[string]any{"name": "Deputy Commissioner", "role_precedence": 25})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/catalog/roles/%d", role.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &role))
	assert.Equal(t, 25, role.Precedence)

	rec, env = f.do(t, http.MethodPost, "/api/catalog/stages", admin, map[string]any{
		"workflow_id": f.snap.Workflow.ID, "name": "odd", "kind": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Details), "kind")

	rec, _ = f.do(t, http.MethodGet, "/api/catalog/transitions/99999", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/catalog/stages/%d/permissions", f.stageID(t, "level_1")), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perms []entity.StagePermission
	require.NoError(t, json.Unmarshal(env.Data, &perms))
	require.Len(t, perms, 1)
	assert.Equal(t, f.roles["Permit Section"].ID, perms[0].RoleID)

	rec, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/api/catalog/roles/%d", role.ID), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domainwf.Invalid("x", "bad"), http.StatusBadRequest},
		{&domainwf.ConditionError{Key: "action", Expected: "FORWARD"}, http.StatusBadRequest},
		{domainwf.ErrNotInitialStage, http.StatusBadRequest},
		{domainwf.ErrNotOfficerStage, http.StatusBadRequest},
		{&domainwf.MissingUpdatesError{Keys: []string{"pan"}}, http.StatusBadRequest},
		{domainwf.ErrForbidden, http.StatusForbidden},
		{domainwf.NotFound("stage", 4), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domainwf.ErrStoreConflict), http.StatusConflict},
		{domainwf.Misconfigured("no processor"), http.StatusInternalServerError},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	server := NewServer(DefaultServerConfig(), Dependencies{}, zap.NewNop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStart_BindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	server := NewServer(cfg, Dependencies{}, zap.NewNop())
	assert.Error(t, server.Start(context.Background()))
}
