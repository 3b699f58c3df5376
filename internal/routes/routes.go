package routes

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/auth"
	"github.com/bohemiyan/LMS/zapLogger"
)

// Permissions guarding the administrative routes.
const (
	PermDepartmentsManage = "departments.manage"
	PermUsersManage       = "users.manage"
	PermModulesManage     = "modules.manage"
	PermRolesManage       = "roles.manage"
	PermEnrollmentsManage = "enrollments.manage"
	PermComplianceManage  = "compliance.manage"
	PermComplianceView    = "compliance.view"
	PermAuditView         = "audit.view"
)

// Options configures the HTTP surface.
type Options struct {
	JWTSecret    string
	Log          *zap.SugaredLogger
	LogOutput    io.Writer              // request log destination, nil disables request logging
	Certificates *lms.CertificateWorker // nil disables the asynchronous certificate route
}

// Response is the JSON envelope of every API reply.
type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

type handler struct {
	svc   *lms.LMS
	certs *lms.CertificateWorker
	log   *zap.SugaredLogger
}

// NewApp builds the Fiber app with the error mapping and every route installed.
func NewApp(svc *lms.LMS, opts Options) *fiber.App {
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	app := fiber.New(fiber.Config{
		AppName:      "lms",
		ErrorHandler: ErrorHandler(opts.Log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.LogOutput != nil {
		app.Use(zapLogger.FiberLoggingMiddleware(opts.LogOutput))
	}
	Setup(app, svc, opts)
	return app
}

// Setup registers the health, metrics and /api/v1 routes.
func Setup(app *fiber.App, svc *lms.LMS, opts Options) {
	h := &handler{svc: svc, certs: opts.Certificates, log: opts.Log}
	if h.log == nil {
		h.log = zap.NewNop().Sugar()
	}

	app.Get("/healthz", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", auth.JWT(opts.JWTSecret))
	guard := func(perm string) fiber.Handler { return auth.RequirePermission(svc, perm) }

	departments := api.Group("/departments")
	departments.Get("/", h.listDepartments)
	departments.Get("/tree", h.departmentTree)
	departments.Post("/", guard(PermDepartmentsManage), h.createDepartment)
	departments.Get("/:id", h.getDepartment)
	departments.Patch("/:id", guard(PermDepartmentsManage), h.renameDepartment)
	departments.Put("/:id/parent", guard(PermDepartmentsManage), h.moveDepartment)
	departments.Put("/:id/manager", guard(PermDepartmentsManage), h.setDepartmentManager)
	departments.Get("/:id/path", h.hierarchyPath)
	departments.Get("/:id/ancestors", h.ancestors)
	departments.Get("/:id/breadcrumb", h.breadcrumb)
	departments.Get("/:id/descendants", h.descendants)
	departments.Get("/:id/level", h.level)

	users := api.Group("/users")
	users.Post("/", guard(PermUsersManage), h.createUser)
	users.Get("/:id", h.getUser)
	users.Put("/:id/department", guard(PermUsersManage), h.setUserDepartment)
	users.Get("/:id/manager", h.directManager)
	users.Get("/:id/subordinates", h.subordinates)
	users.Get("/:id/reporting-structure", h.reportingStructure)
	users.Get("/:id/roles", h.userRoles)
	users.Post("/:id/roles", guard(PermRolesManage), h.assignRole)
	users.Delete("/:id/roles/:roleId", guard(PermRolesManage), h.removeRole)
	users.Get("/:id/permissions", h.userPermissions)
	users.Post("/:id/permissions/sync", guard(PermRolesManage), h.syncUserPermissions)
	users.Get("/:id/enrollments", h.userEnrollments)
	users.Get("/:id/points", h.userPoints)

	roles := api.Group("/roles")
	roles.Get("/", h.listRoles)
	roles.Post("/", guard(PermRolesManage), h.createRole)
	roles.Get("/:id", h.getRole)
	roles.Put("/:id/active", guard(PermRolesManage), h.setRoleActive)
	roles.Get("/:id/permissions", h.rolePermissions)
	roles.Post("/:id/permissions", guard(PermRolesManage), h.addPermissionToRole)
	roles.Delete("/:id/permissions/:permId", guard(PermRolesManage), h.removePermissionFromRole)
	roles.Get("/:id/permission-history", h.rolePermissionHistory)
	roles.Get("/:id/affected-users", h.affectedUsers)
	roles.Post("/:id/bulk-assign", guard(PermRolesManage), h.bulkAssignRole)

	permissions := api.Group("/permissions")
	permissions.Get("/", h.listPermissions)
	permissions.Post("/", guard(PermRolesManage), h.createPermission)
	permissions.Post("/check", h.checkPermissions)

	modules := api.Group("/modules")
	modules.Get("/", h.listModules)
	modules.Post("/", guard(PermModulesManage), h.createModule)
	modules.Get("/:id", h.getModule)
	modules.Get("/:id/prerequisites", h.checkPrerequisites)
	modules.Get("/:id/non-compliant", guard(PermComplianceView), h.nonCompliantUsers)
	modules.Get("/:id/at-risk", guard(PermComplianceView), h.atRiskUsers)

	enrollments := api.Group("/enrollments")
	enrollments.Post("/", guard(PermEnrollmentsManage), h.enroll)
	enrollments.Get("/:id", h.getEnrollment)
	enrollments.Get("/:id/history", h.stateHistory)
	enrollments.Post("/:id/transition", guard(PermEnrollmentsManage), h.transition)
	enrollments.Post("/:id/score", guard(PermEnrollmentsManage), h.recordScore)
	enrollments.Post("/:id/certificate", guard(PermEnrollmentsManage), h.issueCertificate)
	enrollments.Post("/:id/certificate/jobs", guard(PermEnrollmentsManage), h.enqueueCertificate)
	enrollments.Post("/:id/compliance/check", guard(PermComplianceManage), h.checkCompliance)
	enrollments.Post("/:id/compliance/escalate", guard(PermComplianceManage), h.escalate)
	enrollments.Post("/:id/compliance/resolve", guard(PermComplianceManage), h.resolve)
	enrollments.Get("/:id/compliance/logs", guard(PermComplianceView), h.complianceLogs)

	compliance := api.Group("/compliance")
	compliance.Post("/check-all", guard(PermComplianceManage), h.checkAllCompliance)
	compliance.Get("/summary", guard(PermComplianceView), h.complianceSummary)

	api.Get("/audit-logs", guard(PermAuditView), h.auditLogs)
	api.Get("/audit-logs/:id", guard(PermAuditView), h.auditLog)

	cache := api.Group("/cache", guard(PermRolesManage))
	cache.Get("/stats", h.cacheStats)
	cache.Post("/warm", h.warmCache)
	cache.Delete("/", h.clearCache)
}

func (h *handler) health(c *fiber.Ctx) error {
	if err := h.svc.Ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(Response{Message: "unhealthy", Error: err.Error()})
	}
	return c.JSON(Response{Message: "ok"})
}

// ErrorHandler maps core errors onto HTTP statuses.
func ErrorHandler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusOf(err)
		body := Response{Message: "request failed", Error: err.Error()}

		var fe *fiber.Error
		var ve *lms.ValidationError
		var pe *lms.PrerequisiteError
		switch {
		case errors.As(err, &fe):
			body.Message = fe.Message
		case errors.As(err, &ve):
			body.Message = "validation failed"
			body.Error = ve.Fields
		case errors.As(err, &pe):
			body.Message = "prerequisites not met"
			body.Error = fiber.Map{"module_id": pe.ModuleID, "missing": pe.Missing}
		}

		if status >= fiber.StatusInternalServerError {
			log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			body.Error = "internal error"
		}
		return c.Status(status).JSON(body)
	}
}

func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, lms.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, lms.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, lms.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, lms.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, lms.ErrInvalidOperation):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func ok(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(Response{Message: message, Data: data})
}

func created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Message: message, Data: data})
}

func idParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func optionalUint(c *fiber.Ctx, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	u := uint(v)
	return &u, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

// failureMessages flattens per-item errors for JSON.
func failureMessages(failures map[uint]error) map[uint]string {
	if len(failures) == 0 {
		return nil
	}
	out := make(map[uint]string, len(failures))
	for id, err := range failures {
		out[id] = err.Error()
	}
	return out
}
