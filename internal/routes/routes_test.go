package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/auth"
	"github.com/bohemiyan/LMS/internal/testhelpers"
)

const secret = "routes-secret"

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type fixture struct {
	app     *fiber.App
	svc     *lms.LMS
	admin   string
	learner string
	user    *lms.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	svc, err := lms.New(lms.Config{DB: testhelpers.OpenDB(t), AutoMigrate: true, EnableAuditLogging: true})
	require.NoError(t, err)

	admin, err := svc.CreateUser(ctx, lms.NewUser{Name: "Admin", Email: "admin@example.com"}, 0)
	require.NoError(t, err)
	learner, err := svc.CreateUser(ctx, lms.NewUser{Name: "Learner", Email: "learner@example.com"}, 0)
	require.NoError(t, err)

	role, err := svc.CreateRole(ctx, lms.NewRole{Name: "admin"}, 0)
	require.NoError(t, err)
	for _, name := range []string{
		PermDepartmentsManage, PermUsersManage, PermModulesManage, PermRolesManage,
		PermEnrollmentsManage, PermComplianceManage, PermComplianceView, PermAuditView,
	} {
		perm, err := svc.CreatePermission(ctx, lms.NewPermission{Name: name}, 0)
		require.NoError(t, err)
		_, err = svc.AddPermissionToRole(ctx, role.ID, perm.ID, 0)
		require.NoError(t, err)
	}
	require.NoError(t, svc.AssignRole(ctx, admin.ID, role.ID, 0))

	return &fixture{
		app:     NewApp(svc, Options{JWTSecret: secret}),
		svc:     svc,
		admin:   mustToken(t, admin.ID),
		learner: mustToken(t, learner.ID),
		user:    learner,
	}
}

func mustToken(t *testing.T, userID uint) string {
	t.Helper()
	tok, err := auth.IssueToken(secret, userID, "", time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func decodeID(t *testing.T, env envelope) uint {
	t.Helper()
	var v struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.NotZero(t, v.ID)
	return v.ID
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", env.Message)

	require.ErrorIs(t, f.svc.CheckPermission(context.Background(), f.user.ID, PermAuditView), lms.ErrPermissionDenied)
	resp, err := f.app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "lms_permission_checks_total")
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, "GET", "/api/v1/departments", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "missing bearer token", env.Message)

	status, _ = f.do(t, "GET", "/api/v1/departments", f.learner, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = f.do(t, "POST", "/api/v1/departments", f.learner, lms.NewDepartment{Name: "Sales"})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestDepartmentRoutes(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, "POST", "/api/v1/departments", f.admin, lms.NewDepartment{Name: "Company"})
	require.Equal(t, fiber.StatusCreated, status)
	root := decodeID(t, env)

	status, env = f.do(t, "POST", "/api/v1/departments", f.admin, lms.NewDepartment{Name: "Sales", ParentID: &root})
	require.Equal(t, fiber.StatusCreated, status)
	sales := decodeID(t, env)

	status, env = f.do(t, "GET", fmt.Sprintf("/api/v1/departments/%d/breadcrumb", sales), f.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	var crumbs []lms.BreadcrumbItem
	require.NoError(t, json.Unmarshal(env.Data, &crumbs))
	assert.Equal(t, []lms.BreadcrumbItem{{ID: root, Name: "Company"}, {ID: sales, Name: "Sales"}}, crumbs)

	status, _ = f.do(t, "PUT", fmt.Sprintf("/api/v1/departments/%d/parent", root), f.admin, fiber.Map{"parent_id": sales})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, "cycle")

	status, _ = f.do(t, "GET", "/api/v1/departments/999", f.admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = f.do(t, "GET", "/api/v1/departments/abc", f.admin, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestValidationErrorsListFields(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, "POST", "/api/v1/users", f.admin, lms.NewUser{Name: "X", Email: "not-an-email"})
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation failed", env.Message)

	var fields []lms.FieldError
	require.NoError(t, json.Unmarshal(env.Error, &fields))
	require.Len(t, fields, 1)
	assert.Equal(t, "email", fields[0].Field)
}

func TestEnrollmentLifecycle(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, "POST", "/api/v1/modules", f.admin, lms.NewModule{Title: "Safety", PassingGrade: 70})
	require.Equal(t, fiber.StatusCreated, status)
	moduleID := decodeID(t, env)

	enrollBody := fiber.Map{"user_id": f.user.ID, "module_id": moduleID}
	status, env = f.do(t, "POST", "/api/v1/enrollments", f.admin, enrollBody)
	require.Equal(t, fiber.StatusCreated, status)
	id := decodeID(t, env)

	status, _ = f.do(t, "POST", "/api/v1/enrollments", f.admin, enrollBody)
	assert.Equal(t, fiber.StatusConflict, status)

	base := fmt.Sprintf("/api/v1/enrollments/%d", id)
	status, _ = f.do(t, "POST", base+"/transition", f.admin, fiber.Map{"status": "completed"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, "skipping in_progress")

	status, _ = f.do(t, "POST", base+"/transition", f.admin, fiber.Map{"status": "graduated"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	for _, next := range []string{"in_progress", "completed"} {
		status, _ = f.do(t, "POST", base+"/transition", f.admin, fiber.Map{"status": next})
		require.Equal(t, fiber.StatusOK, status, next)
	}

	status, _ = f.do(t, "POST", base+"/score", f.admin, fiber.Map{"score": 101})
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = f.do(t, "POST", base+"/score", f.admin, fiber.Map{"score": 85})
	require.Equal(t, fiber.StatusOK, status)

	status, env = f.do(t, "POST", base+"/certificate", f.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	var ut lms.UserTraining
	require.NoError(t, json.Unmarshal(env.Data, &ut))
	assert.True(t, ut.IsCertified)

	status, _ = f.do(t, "POST", base+"/certificate", f.admin, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = f.do(t, "POST", base+"/transition", f.admin, fiber.Map{"status": "certified"})
	require.Equal(t, fiber.StatusOK, status)

	status, env = f.do(t, "GET", base+"/history", f.learner, nil)
	require.Equal(t, fiber.StatusOK, status)
	var history []lms.StateTransition
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 4)

	status, _ = f.do(t, "POST", base+"/certificate/jobs", f.admin, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestPrerequisiteErrorBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	basics, err := f.svc.CreateModule(ctx, lms.NewModule{Title: "Basics"}, 0)
	require.NoError(t, err)
	advanced, err := f.svc.CreateModule(ctx, lms.NewModule{Title: "Advanced", PrerequisiteModuleID: &basics.ID}, 0)
	require.NoError(t, err)

	status, env := f.do(t, "POST", "/api/v1/enrollments", f.admin, fiber.Map{"user_id": f.user.ID, "module_id": advanced.ID})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "prerequisites not met", env.Message)

	var body struct {
		ModuleID uint   `json:"module_id"`
		Missing  []uint `json:"missing"`
	}
	require.NoError(t, json.Unmarshal(env.Error, &body))
	assert.Equal(t, advanced.ID, body.ModuleID)
	assert.Equal(t, []uint{basics.ID}, body.Missing)
}

func TestRoleRoutesPropagate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.svc.CreateRole(ctx, lms.NewRole{Name: "grader"}, 0)
	require.NoError(t, err)
	perm, err := f.svc.CreatePermission(ctx, lms.NewPermission{Name: "quiz.grade"}, 0)
	require.NoError(t, err)

	status, _ := f.do(t, "POST", fmt.Sprintf("/api/v1/users/%d/roles", f.user.ID), f.admin, fiber.Map{"role_id": role.ID})
	require.Equal(t, fiber.StatusCreated, status)

	status, env := f.do(t, "POST", fmt.Sprintf("/api/v1/roles/%d/permissions", role.ID), f.admin, fiber.Map{"permission_id": perm.ID})
	require.Equal(t, fiber.StatusOK, status)
	var res struct {
		Users  int `json:"users"`
		Synced int `json:"synced"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Users)
	assert.Equal(t, 1, res.Synced)

	status, env = f.do(t, "POST", "/api/v1/permissions/check", f.learner, []lms.BulkPermissionCheck{
		{UserID: f.user.ID, Permission: "quiz.grade"},
		{UserID: f.user.ID, Permission: PermAuditView},
	})
	require.Equal(t, fiber.StatusOK, status)
	var checks []struct {
		Allowed bool `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &checks))
	require.Len(t, checks, 2)
	assert.True(t, checks[0].Allowed)
	assert.False(t, checks[1].Allowed)

	status, _ = f.do(t, "DELETE", fmt.Sprintf("/api/v1/roles/%d/permissions/%d", role.ID, perm.ID), f.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = f.do(t, "DELETE", fmt.Sprintf("/api/v1/roles/%d/permissions/%d", role.ID, perm.ID), f.admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestComplianceRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-48 * time.Hour)
	start := past.Add(-48 * time.Hour)
	m, err := f.svc.CreateModule(ctx, lms.NewModule{Title: "Policy", ComplianceRequired: true, StartDate: &start, EndDate: &past}, 0)
	require.NoError(t, err)
	ut, err := f.svc.Enroll(ctx, f.user.ID, m.ID, 0)
	require.NoError(t, err)

	status, env := f.do(t, "POST", "/api/v1/compliance/check-all", f.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	var sweep struct {
		Checked   int `json:"checked"`
		Escalated int `json:"escalated"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sweep))
	assert.Equal(t, 1, sweep.Checked)
	assert.Equal(t, 1, sweep.Escalated)

	status, env = f.do(t, "GET", fmt.Sprintf("/api/v1/modules/%d/non-compliant", m.ID), f.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	var rows []lms.UserTraining
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, ut.ID, rows[0].ID)

	status, env = f.do(t, "POST", fmt.Sprintf("/api/v1/enrollments/%d/compliance/resolve", ut.ID), f.admin, fiber.Map{"reason": "manual review"})
	require.Equal(t, fiber.StatusOK, status)
	var resolved lms.UserTraining
	require.NoError(t, json.Unmarshal(env.Data, &resolved))
	assert.Equal(t, lms.ComplianceCompliant, resolved.ComplianceStatus)
	assert.Nil(t, resolved.EscalatedAt)

	status, env = f.do(t, "GET", "/api/v1/compliance/summary", f.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	var summary lms.ComplianceSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, int64(1), summary.Compliant)

	status, _ = f.do(t, "GET", "/api/v1/compliance/summary", f.learner, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = f.do(t, "GET", "/api/v1/audit-logs?target_type=abc&actor_id=x", f.admin, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
