package routes

import (
	"github.com/gofiber/fiber/v2"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/auth"
)

func (h *handler) listModules(c *fiber.Ctx) error {
	modules, err := h.svc.ListModules(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "modules", modules)
}

func (h *handler) createModule(c *fiber.Ctx) error {
	var in lms.NewModule
	if err := parseBody(c, &in); err != nil {
		return err
	}
	module, err := h.svc.CreateModule(c.UserContext(), in, auth.UserID(c))
	if err != nil {
		return err
	}
	return created(c, "module created", module)
}

func (h *handler) getModule(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	module, err := h.svc.GetModule(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "module", module)
}

func (h *handler) checkPrerequisites(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	userID, err := optionalUint(c, "user_id")
	if err != nil {
		return err
	}
	if userID == nil {
		uid := auth.UserID(c)
		userID = &uid
	}
	check, err := h.svc.CheckPrerequisites(c.UserContext(), *userID, id)
	if err != nil {
		return err
	}
	return ok(c, "prerequisites", check)
}

func (h *handler) enroll(c *fiber.Ctx) error {
	var body struct {
		UserID   uint `json:"user_id"`
		ModuleID uint `json:"module_id"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	ut, err := h.svc.Enroll(c.UserContext(), body.UserID, body.ModuleID, auth.UserID(c))
	if err != nil {
		return err
	}
	return created(c, "enrolled", ut)
}

func (h *handler) getEnrollment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ut, err := h.svc.GetEnrollment(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "enrollment", ut)
}

func (h *handler) stateHistory(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	history, err := h.svc.GetStateHistory(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "state history", history)
}

func (h *handler) transition(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Status lms.Status `json:"status"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	ut, err := h.svc.TransitionState(c.UserContext(), id, body.Status, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "state changed", ut)
}

func (h *handler) recordScore(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Score *float64 `json:"score"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Score == nil {
		return fiber.NewError(fiber.StatusBadRequest, "score is required")
	}
	ut, err := h.svc.RecordFinalScore(c.UserContext(), id, *body.Score, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "score recorded", ut)
}

func (h *handler) issueCertificate(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	ut, err := h.svc.IssueCertificate(c.UserContext(), id, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "certificate issued", ut)
}

func (h *handler) enqueueCertificate(c *fiber.Ctx) error {
	if h.certs == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "certificate worker is not running")
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.svc.GetEnrollment(c.UserContext(), id); err != nil {
		return err
	}
	jobID, err := h.certs.Enqueue(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(Response{Message: "certificate queued", Data: fiber.Map{"job_id": jobID}})
}
