package routes

import (
	"github.com/gofiber/fiber/v2"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/auth"
)

func (h *handler) createUser(c *fiber.Ctx) error {
	var in lms.NewUser
	if err := parseBody(c, &in); err != nil {
		return err
	}
	user, err := h.svc.CreateUser(c.UserContext(), in, auth.UserID(c))
	if err != nil {
		return err
	}
	return created(c, "user created", user)
}

func (h *handler) getUser(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	user, err := h.svc.GetUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "user", user)
}

func (h *handler) setUserDepartment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		DepartmentID *uint `json:"department_id"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	user, err := h.svc.SetUserDepartment(c.UserContext(), id, body.DepartmentID, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "user department updated", user)
}

func (h *handler) directManager(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	manager, err := h.svc.GetDirectManager(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "direct manager", manager)
}

func (h *handler) subordinates(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	users, err := h.svc.GetSubordinates(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "subordinates", users)
}

func (h *handler) reportingStructure(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	rs, err := h.svc.GetReportingStructure(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "reporting structure", rs)
}

func (h *handler) userEnrollments(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	enrollments, err := h.svc.ListUserEnrollments(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "enrollments", enrollments)
}

func (h *handler) userPoints(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	points, err := h.svc.GetUserPoints(c.UserContext(), id)
	if err != nil {
		return err
	}
	entries, err := h.svc.ListPointTransactions(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "points", fiber.Map{"user_id": id, "total": points, "transactions": entries})
}
