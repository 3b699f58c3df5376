package lms

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// DepartmentNode is a department with its children, as returned by BuildTree.
type DepartmentNode struct {
	Department
	Children []*DepartmentNode `json:"children"`
}

// BreadcrumbItem is one step of a root-to-self breadcrumb.
type BreadcrumbItem struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// CreateDepartment creates a department, optionally under a parent.
func (l *LMS) CreateDepartment(ctx context.Context, in NewDepartment, actorID uint) (*Department, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	dept := &Department{Name: in.Name, ManagerID: in.ManagerID}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ParentID != nil {
			var parent Department
			if err := tx.First(&parent, *in.ParentID).Error; err != nil {
				return notFound(err, "parent department", *in.ParentID)
			}
			dept.ParentID = in.ParentID
			dept.Level = parent.Level + 1
		}
		if err := tx.Create(dept).Error; err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "create_department", "department", dept.ID, "Created department: "+in.Name)
	})
	if err != nil {
		return nil, err
	}
	return dept, nil
}

// RenameDepartment updates a department's name.
func (l *LMS) RenameDepartment(ctx context.Context, id uint, name string, actorID uint) (*Department, error) {
	if err := validateVar("name", name, "required,max=200"); err != nil {
		return nil, err
	}

	var dept Department
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&dept, id).Error; err != nil {
			return notFound(err, "department", id)
		}
		dept.Name = name
		if err := tx.Save(&dept).Error; err != nil {
			return err
		}
		return l.logAudit(tx, actorID, "rename_department", "department", id, "Renamed department to: "+name)
	})
	if err != nil {
		return nil, err
	}
	return &dept, nil
}

// GetDepartment retrieves a department by ID.
func (l *LMS) GetDepartment(ctx context.Context, id uint) (*Department, error) {
	var dept Department
	if err := l.db.WithContext(ctx).First(&dept, id).Error; err != nil {
		return nil, notFound(err, "department", id)
	}
	return &dept, nil
}

// ListDepartments retrieves all departments ordered by name.
func (l *LMS) ListDepartments(ctx context.Context) ([]Department, error) {
	var depts []Department
	if err := l.db.WithContext(ctx).Order("name ASC, id ASC").Find(&depts).Error; err != nil {
		return nil, err
	}
	return depts, nil
}

// BuildTree returns the department forest with roots and children ordered by name.
// A department whose parent no longer exists is returned as a root.
func (l *LMS) BuildTree(ctx context.Context) ([]*DepartmentNode, error) {
	depts, err := l.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make(map[uint]*DepartmentNode, len(depts))
	for _, d := range depts {
		nodes[d.ID] = &DepartmentNode{Department: d, Children: []*DepartmentNode{}}
	}

	roots := []*DepartmentNode{}
	for _, d := range depts {
		node := nodes[d.ID]
		if d.ParentID != nil {
			if parent, ok := nodes[*d.ParentID]; ok && *d.ParentID != d.ID {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	// depts is already sorted by name, and appends keep that order.
	return roots, nil
}

// GetHierarchyPath returns the chain from the department up to its root, self first.
func (l *LMS) GetHierarchyPath(ctx context.Context, id uint) ([]Department, error) {
	return hierarchyPath(l.db.WithContext(ctx), id)
}

// GetAncestors returns the chain from the immediate parent up to the root.
func (l *LMS) GetAncestors(ctx context.Context, id uint) ([]Department, error) {
	path, err := l.GetHierarchyPath(ctx, id)
	if err != nil {
		return nil, err
	}
	return path[1:], nil
}

// GetBreadcrumb returns the chain from the root down to the department.
func (l *LMS) GetBreadcrumb(ctx context.Context, id uint) ([]BreadcrumbItem, error) {
	path, err := l.GetHierarchyPath(ctx, id)
	if err != nil {
		return nil, err
	}
	crumbs := make([]BreadcrumbItem, len(path))
	for i, d := range path {
		crumbs[len(path)-1-i] = BreadcrumbItem{ID: d.ID, Name: d.Name}
	}
	return crumbs, nil
}

// GetLevel recomputes the depth of a department by walking to its root.
func (l *LMS) GetLevel(ctx context.Context, id uint) (int, error) {
	path, err := l.GetHierarchyPath(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

// GetDescendants returns every department below id, in breadth-first order.
func (l *LMS) GetDescendants(ctx context.Context, id uint) ([]Department, error) {
	db := l.db.WithContext(ctx)
	var root Department
	if err := db.First(&root, id).Error; err != nil {
		return nil, notFound(err, "department", id)
	}
	return descendants(db, id)
}

// MoveDepartment reparents a department. A nil newParentID makes it a root.
// The node and every descendant get their level recomputed in the same transaction.
func (l *LMS) MoveDepartment(ctx context.Context, id uint, newParentID *uint, actorID uint) (*Department, error) {
	if newParentID != nil && *newParentID == id {
		return nil, invalidOp("department %d cannot be its own parent", id)
	}

	// Moves are serialized so two concurrent reparentings cannot close a cycle.
	l.moveMu.Lock()
	defer l.moveMu.Unlock()

	var dept Department
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&dept, id).Error; err != nil {
			return notFound(err, "department", id)
		}

		subtree, err := descendants(tx, id)
		if err != nil {
			return err
		}

		newLevel := 0
		if newParentID != nil {
			for _, d := range subtree {
				if d.ID == *newParentID {
					return invalidOp("moving department %d under its descendant %d would create a cycle", id, *newParentID)
				}
			}
			var parent Department
			if err := tx.First(&parent, *newParentID).Error; err != nil {
				return notFound(err, "parent department", *newParentID)
			}
			parentLevel, err := levelOf(tx, parent.ID)
			if err != nil {
				return err
			}
			newLevel = parentLevel + 1
		}

		if err := tx.Model(&Department{}).Where("id = ?", id).
			Updates(map[string]interface{}{"parent_id": newParentID, "level": newLevel}).Error; err != nil {
			return fmt.Errorf("failed to move department: %w", err)
		}
		dept.ParentID = newParentID
		dept.Level = newLevel

		levels := map[uint]int{id: newLevel}
		for _, d := range subtree {
			lvl := levels[*d.ParentID] + 1
			levels[d.ID] = lvl
			if d.Level == lvl {
				continue
			}
			if err := tx.Model(&Department{}).Where("id = ?", d.ID).Update("level", lvl).Error; err != nil {
				return fmt.Errorf("failed to update level of department %d: %w", d.ID, err)
			}
		}

		details := "Moved department to root"
		if newParentID != nil {
			details = fmt.Sprintf("Moved department under %d", *newParentID)
		}
		return l.logAudit(tx, actorID, "move_department", "department", id, details)
	})
	if err != nil {
		return nil, err
	}

	l.log.Infow("department moved", "department_id", id, "parent_id", newParentID, "level", dept.Level)
	return &dept, nil
}

// hierarchyPath walks parent pointers from id to the root.
func hierarchyPath(db *gorm.DB, id uint) ([]Department, error) {
	var path []Department
	seen := make(map[uint]bool)
	next := &id
	for next != nil {
		if seen[*next] {
			return nil, fmt.Errorf("%w: department %d revisited", ErrHierarchyCorrupt, *next)
		}
		seen[*next] = true

		var d Department
		if err := db.First(&d, *next).Error; err != nil {
			if len(path) == 0 {
				return nil, notFound(err, "department", *next)
			}
			// Dangling parent pointer: the last loaded node acts as a root.
			if isNotFound(err) {
				break
			}
			return nil, err
		}
		path = append(path, d)
		next = d.ParentID
	}
	return path, nil
}

func levelOf(db *gorm.DB, id uint) (int, error) {
	path, err := hierarchyPath(db, id)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

// descendants walks the subtree below id one generation at a time. Every returned
// department's parent appears earlier in the slice (or is id itself).
func descendants(db *gorm.DB, id uint) ([]Department, error) {
	var out []Department
	seen := map[uint]bool{id: true}
	frontier := []uint{id}
	for len(frontier) > 0 {
		var children []Department
		if err := db.Where("parent_id IN ?", frontier).Order("id ASC").Find(&children).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, c := range children {
			if seen[c.ID] {
				return nil, fmt.Errorf("%w: department %d reached twice below %d", ErrHierarchyCorrupt, c.ID, id)
			}
			seen[c.ID] = true
			out = append(out, c)
			frontier = append(frontier, c.ID)
		}
	}
	return out, nil
}
