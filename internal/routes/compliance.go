package routes

import (
	"github.com/gofiber/fiber/v2"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/auth"
)

func (h *handler) checkCompliance(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.CheckAndEscalateCompliance(c.UserContext(), id, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "compliance checked", res)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (h *handler) escalate(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body reasonBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	ut, err := h.svc.EscalateNonCompliance(c.UserContext(), id, body.Reason, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "enrollment escalated", ut)
}

func (h *handler) resolve(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body reasonBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	ut, err := h.svc.ResolveNonCompliance(c.UserContext(), id, body.Reason, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "non-compliance resolved", ut)
}

func (h *handler) complianceLogs(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	logs, err := h.svc.ListComplianceAuditLogs(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "compliance audit logs", logs)
}

func (h *handler) checkAllCompliance(c *fiber.Ctx) error {
	res, err := h.svc.CheckAllCompliance(c.UserContext(), auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "compliance sweep finished", fiber.Map{
		"checked":   res.Checked,
		"escalated": res.Escalated,
		"resolved":  res.Resolved,
		"failed":    res.Failed,
		"failures":  failureMessages(res.Failures),
	})
}

func (h *handler) complianceSummary(c *fiber.Ctx) error {
	summary, err := h.svc.GetComplianceSummary(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "compliance summary", summary)
}

func (h *handler) nonCompliantUsers(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	enrollments, err := h.svc.GetNonCompliantUsers(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "non-compliant enrollments", enrollments)
}

func (h *handler) atRiskUsers(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	enrollments, err := h.svc.GetAtRiskUsers(c.UserContext(), id, c.QueryInt("days", 7))
	if err != nil {
		return err
	}
	return ok(c, "at-risk enrollments", enrollments)
}

func (h *handler) auditLogs(c *fiber.Ctx) error {
	var filter lms.AuditFilter
	var err error
	if filter.ActorID, err = optionalUint(c, "actor_id"); err != nil {
		return err
	}
	if filter.TargetID, err = optionalUint(c, "target_id"); err != nil {
		return err
	}
	if t := c.Query("target_type"); t != "" {
		filter.TargetType = &t
	}
	logs, err := h.svc.ListAuditLogs(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return ok(c, "audit logs", logs)
}

func (h *handler) auditLog(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.svc.GetAuditLog(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "audit log", entry)
}
