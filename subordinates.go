package lms

import (
	"context"
	"sort"

	"gorm.io/gorm"
)

// ReportingStructure describes where a user sits in the organization.
type ReportingStructure struct {
	User         User             `json:"user"`
	Department   *Department      `json:"department"`
	Breadcrumb   []BreadcrumbItem `json:"breadcrumb"`
	ManagerChain []User           `json:"manager_chain"` // direct manager first
	Subordinates []User           `json:"subordinates"`
}

// GetDirectManager returns the manager a user reports to, or nil when none is mapped.
// That is the manager of the user's department, or of the nearest ancestor department
// when the user manages their own department or it has no manager.
func (l *LMS) GetDirectManager(ctx context.Context, userID uint) (*User, error) {
	db := l.db.WithContext(ctx)
	var user User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}
	depts, err := departmentIndex(db)
	if err != nil {
		return nil, err
	}
	managerID := directManagerID(depts, user)
	if managerID == nil {
		return nil, nil
	}
	var manager User
	if err := db.First(&manager, *managerID).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &manager, nil
}

// GetSubordinates returns the users whose direct manager is managerID, ordered by id.
func (l *LMS) GetSubordinates(ctx context.Context, managerID uint) ([]User, error) {
	return subordinates(l.db.WithContext(ctx), managerID)
}

// GetReportingStructure assembles the department path, manager chain and direct reports of a user.
func (l *LMS) GetReportingStructure(ctx context.Context, userID uint) (*ReportingStructure, error) {
	db := l.db.WithContext(ctx)
	var user User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}
	depts, err := departmentIndex(db)
	if err != nil {
		return nil, err
	}

	rs := &ReportingStructure{User: user, Breadcrumb: []BreadcrumbItem{}, ManagerChain: []User{}}
	if user.DepartmentID != nil {
		if d, ok := depts[*user.DepartmentID]; ok {
			rs.Department = &d
			crumbs, err := l.GetBreadcrumb(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			rs.Breadcrumb = crumbs
		}
	}

	seen := map[uint]bool{user.ID: true}
	current := user
	for {
		managerID := directManagerID(depts, current)
		if managerID == nil || seen[*managerID] {
			break
		}
		seen[*managerID] = true
		var manager User
		if err := db.First(&manager, *managerID).Error; err != nil {
			if isNotFound(err) {
				break
			}
			return nil, err
		}
		rs.ManagerChain = append(rs.ManagerChain, manager)
		current = manager
	}

	subs, err := subordinates(db, userID)
	if err != nil {
		return nil, err
	}
	rs.Subordinates = subs
	return rs, nil
}

func subordinates(db *gorm.DB, managerID uint) ([]User, error) {
	depts, err := departmentIndex(db)
	if err != nil {
		return nil, err
	}

	// Candidates live in the subtrees of the departments the manager runs.
	children := make(map[uint][]uint)
	var managed []uint
	for _, d := range depts {
		if d.ParentID != nil {
			children[*d.ParentID] = append(children[*d.ParentID], d.ID)
		}
		if d.ManagerID != nil && *d.ManagerID == managerID {
			managed = append(managed, d.ID)
		}
	}
	if len(managed) == 0 {
		return []User{}, nil
	}

	seen := make(map[uint]bool)
	var scope []uint
	queue := append([]uint(nil), managed...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		scope = append(scope, id)
		queue = append(queue, children[id]...)
	}

	var candidates []User
	if err := db.Where("department_id IN ? AND id <> ?", scope, managerID).Find(&candidates).Error; err != nil {
		return nil, err
	}

	out := []User{}
	for _, u := range candidates {
		if m := directManagerID(depts, u); m != nil && *m == managerID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func departmentIndex(db *gorm.DB) (map[uint]Department, error) {
	var depts []Department
	if err := db.Find(&depts).Error; err != nil {
		return nil, err
	}
	index := make(map[uint]Department, len(depts))
	for _, d := range depts {
		index[d.ID] = d
	}
	return index, nil
}

// directManagerID walks up from the user's department to the first manager other than the user.
func directManagerID(depts map[uint]Department, user User) *uint {
	if user.DepartmentID == nil {
		return nil
	}
	seen := make(map[uint]bool)
	next := user.DepartmentID
	for next != nil && !seen[*next] {
		seen[*next] = true
		d, ok := depts[*next]
		if !ok {
			return nil
		}
		if d.ManagerID != nil && *d.ManagerID != user.ID {
			return d.ManagerID
		}
		next = d.ParentID
	}
	return nil
}
