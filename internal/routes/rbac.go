package routes

import (
	"github.com/gofiber/fiber/v2"

	lms "github.com/bohemiyan/LMS"
	"github.com/bohemiyan/LMS/internal/auth"
)

func (h *handler) listRoles(c *fiber.Ctx) error {
	roles, err := h.svc.ListRoles(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return err
	}
	return ok(c, "roles", roles)
}

func (h *handler) createRole(c *fiber.Ctx) error {
	var in lms.NewRole
	if err := parseBody(c, &in); err != nil {
		return err
	}
	role, err := h.svc.CreateRole(c.UserContext(), in, auth.UserID(c))
	if err != nil {
		return err
	}
	return created(c, "role created", role)
}

func (h *handler) getRole(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	role, err := h.svc.GetRole(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "role", role)
}

func (h *handler) setRoleActive(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Active == nil {
		return fiber.NewError(fiber.StatusBadRequest, "active is required")
	}
	role, err := h.svc.SetRoleActive(c.UserContext(), id, *body.Active, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "role updated", role)
}

func (h *handler) rolePermissions(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	perms, err := h.svc.GetRolePermissions(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "role permissions", perms)
}

func propagationBody(res *lms.PropagationResult) fiber.Map {
	return fiber.Map{
		"role_id":  res.RoleID,
		"users":    res.Users,
		"synced":   res.Synced,
		"failures": failureMessages(res.Failures),
	}
}

func (h *handler) addPermissionToRole(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		PermissionID uint `json:"permission_id"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	res, err := h.svc.AddPermissionToRole(c.UserContext(), id, body.PermissionID, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "permission added to role", propagationBody(res))
}

func (h *handler) removePermissionFromRole(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	permID, err := idParam(c, "permId")
	if err != nil {
		return err
	}
	res, err := h.svc.RemovePermissionFromRole(c.UserContext(), id, permID, auth.UserID(c))
	if err != nil {
		return err
	}
	return ok(c, "permission removed from role", propagationBody(res))
}

func (h *handler) rolePermissionHistory(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	events, err := h.svc.GetRolePermissionHistory(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "role permission history", events)
}

func (h *handler) affectedUsers(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	users, err := h.svc.GetAffectedUsers(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "affected users", users)
}

func (h *handler) bulkAssignRole(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		UserIDs []uint `json:"user_ids"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	res := h.svc.BulkAssignRole(c.UserContext(), body.UserIDs, id, auth.UserID(c))
	return ok(c, "bulk assignment finished", fiber.Map{
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
		"failures":  failureMessages(res.Failures),
	})
}

func (h *handler) userRoles(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	roles, err := h.svc.ListUserRoles(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "user roles", roles)
}

func (h *handler) assignRole(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		RoleID uint `json:"role_id"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if err := h.svc.AssignRole(c.UserContext(), id, body.RoleID, auth.UserID(c)); err != nil {
		return err
	}
	return created(c, "role assigned", fiber.Map{"user_id": id, "role_id": body.RoleID})
}

func (h *handler) removeRole(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	roleID, err := idParam(c, "roleId")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveRole(c.UserContext(), id, roleID, auth.UserID(c)); err != nil {
		return err
	}
	return ok(c, "role removed", fiber.Map{"user_id": id, "role_id": roleID})
}

func (h *handler) userPermissions(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	perms, err := h.svc.GetUserPermissions(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "user permissions", perms)
}

func (h *handler) syncUserPermissions(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	perms, err := h.svc.SyncUserPermissions(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, "user permissions synced", perms)
}

func (h *handler) listPermissions(c *fiber.Ctx) error {
	perms, err := h.svc.ListPermissions(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, "permissions", perms)
}

func (h *handler) createPermission(c *fiber.Ctx) error {
	var in lms.NewPermission
	if err := parseBody(c, &in); err != nil {
		return err
	}
	perm, err := h.svc.CreatePermission(c.UserContext(), in, auth.UserID(c))
	if err != nil {
		return err
	}
	return created(c, "permission created", perm)
}

func (h *handler) checkPermissions(c *fiber.Ctx) error {
	var checks []lms.BulkPermissionCheck
	if err := parseBody(c, &checks); err != nil {
		return err
	}
	results := h.svc.CheckBulkPermissions(c.UserContext(), checks)
	out := make([]fiber.Map, len(results))
	for i, r := range results {
		m := fiber.Map{"user_id": r.UserID, "permission": r.Permission, "allowed": r.Allowed}
		if r.Error != nil {
			m["error"] = r.Error.Error()
		}
		out[i] = m
	}
	return ok(c, "permission checks", out)
}

func (h *handler) cacheStats(c *fiber.Ctx) error {
	return ok(c, "cache stats", h.svc.GetCacheStats(c.UserContext()))
}

func (h *handler) warmCache(c *fiber.Ctx) error {
	var body struct {
		UserIDs []uint `json:"user_ids"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if err := h.svc.WarmCache(c.UserContext(), body.UserIDs); err != nil {
		return err
	}
	return ok(c, "cache warmed", fiber.Map{"users": len(body.UserIDs)})
}

func (h *handler) clearCache(c *fiber.Ctx) error {
	if err := h.svc.ClearAllCache(c.UserContext()); err != nil {
		return err
	}
	return ok(c, "cache cleared", nil)
}
