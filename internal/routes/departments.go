package routes

import (
	"github.com/gofiber/fiber/v2"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/auth"
)

func (h *handler) listDepartments(c *fiber.Ctx) error {
	depts, err := h.svc.ListDepartments(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "departments", depts)
}

func (h *handler) departmentTree(c *fiber.Ctx) error {
	tree, err := h.svc.BuildTree(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "department tree", tree)
}

func (h *handler) createDepartment(c *fiber.Ctx) error {
	var in lms.NewDepartment
	if err := parseBody(c, &in); err != nil {
		return err
	}
	dept, err := h.svc.CreateDepartment(c.UserContext(), in, auth.UserID(c))
	if err != nil {
		return err
	}
	return created(c, "department created", dept)
}

func (h *handler) getDepartment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	dept, err := h.svc.GetDepartment(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "department", dept)
}

func (h *handler) renameDepartment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	dept, err := h.svc.RenameDepartment(c.UserContext(), id, body.Name, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "department renamed", dept)
}

func (h *handler) moveDepartment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		ParentID *uint `json:"parent_id"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	dept, err := h.svc.MoveDepartment(c.UserContext(), id, body.ParentID, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "department moved", dept)
}

func (h *handler) setDepartmentManager(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		ManagerID *uint `json:"manager_id"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	dept, err := h.svc.SetDepartmentManager(c.UserContext(), id, body.ManagerID, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "department manager updated", dept)
}

func (h *handler) hierarchyPath(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	path, err := h.svc.GetHierarchyPath(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "hierarchy path", path)
}

func (h *handler) ancestors(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	depts, err := h.svc.GetAncestors(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "ancestors", depts)
}

func (h *handler) breadcrumb(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.GetBreadcrumb(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "breadcrumb", items)
}

func (h *handler) descendants(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	depts, err := h.svc.GetDescendants(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "descendants", depts)
}

func (h *handler) level(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	lvl, err := h.svc.GetLevel(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "level", fiber.Map{"department_id": id, "level": lvl})
}
