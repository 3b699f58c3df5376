package lms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDepartment(t *testing.T) {
	l := newTestLMS(t)
	ctx := context.Background()

	root := mustDept(t, l, "Company", nil)
	assert.Equal(t, 0, root.Level)

	child := mustDept(t, l, "Engineering", &root.ID)
	assert.Equal(t, 1, child.Level)
	assert.Equal(t, root.ID, *child.ParentID)

	_, err := l.CreateDepartment(ctx, NewDepartment{Name: "Orphan", ParentID: ptr(uint(999))}, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.CreateDepartment(ctx, NewDepartment{Name: ""}, 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Fields[0].Field)
	assert.ErrorIs(t, err, ErrInvalidInput)

	logs, err := l.ListAuditLogs(ctx, AuditFilter{TargetType: ptr("department")})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestHierarchyQueries(t *testing.T) {
	l := newTestLMS(t)
	ctx := context.Background()

	root := mustDept(t, l, "Company", nil)
	eng := mustDept(t, l, "Engineering", &root.ID)
	platform := mustDept(t, l, "Platform", &eng.ID)
	sales := mustDept(t, l, "Sales", &root.ID)

	path, err := l.GetHierarchyPath(ctx, platform.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []uint{platform.ID, eng.ID, root.ID}, []uint{path[0].ID, path[1].ID, path[2].ID})

	ancestors, err := l.GetAncestors(ctx, platform.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, eng.ID, ancestors[0].ID)

	rootAncestors, err := l.GetAncestors(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, rootAncestors)

	crumbs, err := l.GetBreadcrumb(ctx, platform.ID)
	require.NoError(t, err)
	assert.Equal(t, []BreadcrumbItem{{root.ID, "Company"}, {eng.ID, "Engineering"}, {platform.ID, "Platform"}}, crumbs)

	level, err := l.GetLevel(ctx, platform.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, level)

	desc, err := l.GetDescendants(ctx, root.ID)
	require.NoError(t, err)
	ids := make([]uint, len(desc))
	for i, d := range desc {
		ids[i] = d.ID
	}
	assert.ElementsMatch(t, []uint{eng.ID, platform.ID, sales.ID}, ids)

	tree, err := l.BuildTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 2)
	assert.Equal(t, "Engineering", tree[0].Children[0].Name)
	assert.Equal(t, "Sales", tree[0].Children[1].Name)
	assert.Equal(t, "Platform", tree[0].Children[0].Children[0].Name)

	_, err = l.GetHierarchyPath(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.GetDescendants(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveDepartmentRejectsCycles(t *testing.T) {
	l := newTestLMS(t)
	ctx := context.Background()

	a := mustDept(t, l, "A", nil)
	b := mustDept(t, l, "B", &a.ID)
	c := mustDept(t, l, "C", &b.ID)

	tests := []struct {
		name   string
		id     uint
		parent uint
	}{
		{"self parent", a.ID, a.ID},
		{"direct child", a.ID, b.ID},
		{"grandchild", a.ID, c.ID},
		{"child under own child", b.ID, c.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.MoveDepartment(ctx, tt.id, ptr(tt.parent), 1)
			assert.ErrorIs(t, err, ErrInvalidOperation)
		})
	}

	for _, want := range []*Department{a, b, c} {
		got, err := l.GetDepartment(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ParentID, got.ParentID)
		assert.Equal(t, want.Level, got.Level)
	}
}

func TestMoveDepartmentCascadesLevels(t *testing.T) {
	l := newTestLMS(t)
	ctx := context.Background()

	r1 := mustDept(t, l, "R1", nil)
	a := mustDept(t, l, "A", &r1.ID)
	b := mustDept(t, l, "B", &a.ID)
	c := mustDept(t, l, "C", &b.ID)
	r2 := mustDept(t, l, "R2", nil)
	x := mustDept(t, l, "X", &r2.ID)

	moved, err := l.MoveDepartment(ctx, a.ID, &x.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Level)

	assertLevels := func(want map[uint]int) {
		t.Helper()
		for id, lvl := range want {
			d, err := l.GetDepartment(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, lvl, d.Level, "department %d", id)
			computed, err := l.GetLevel(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, computed, d.Level, "cached level drifted for %d", id)
		}
	}
	assertLevels(map[uint]int{a.ID: 2, b.ID: 3, c.ID: 4, r1.ID: 0})

	_, err = l.MoveDepartment(ctx, a.ID, nil, 7)
	require.NoError(t, err)
	assertLevels(map[uint]int{a.ID: 0, b.ID: 1, c.ID: 2})

	_, err = l.MoveDepartment(ctx, a.ID, ptr(uint(999)), 7)
	assert.ErrorIs(t, err, ErrNotFound)

	logs, err := l.ListAuditLogs(ctx, AuditFilter{ActorID: ptr(uint(7))})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "move_department", logs[0].Action)
}

func TestCorruptHierarchyFailsFast(t *testing.T) {
	l := newTestLMS(t)
	ctx := context.Background()

	a := mustDept(t, l, "A", nil)
	b := mustDept(t, l, "B", &a.ID)
	require.NoError(t, l.db.Model(&Department{}).Where("id = ?", a.ID).Update("parent_id", b.ID).Error)

	_, err := l.GetLevel(ctx, a.ID)
	assert.ErrorIs(t, err, ErrHierarchyCorrupt)

	_, err = l.GetDescendants(ctx, a.ID)
	assert.ErrorIs(t, err, ErrHierarchyCorrupt)
}

func TestRenameDepartment(t *testing.T) {
	l := newTestLMS(t)
	ctx := context.Background()

	d := mustDept(t, l, "Old", nil)
	renamed, err := l.RenameDepartment(ctx, d.ID, "New", 0)
	require.NoError(t, err)
	assert.Equal(t, "New", renamed.Name)

	_, err = l.RenameDepartment(ctx, d.ID, "", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = l.RenameDepartment(ctx, 999, "Name", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportingStructure(t *testing.T) {
	l := newTestLMS(t)
	ctx := context.Background()

	eng := mustDept(t, l, "Engineering", nil)
	platform := mustDept(t, l, "Platform", &eng.ID)

	head := mustUser(t, l, "head", &eng.ID)
	lead := mustUser(t, l, "lead", &platform.ID)
	dev := mustUser(t, l, "dev", &platform.ID)
	analyst := mustUser(t, l, "analyst", &eng.ID)
	loner := mustUser(t, l, "loner", nil)

	_, err := l.SetDepartmentManager(ctx, eng.ID, &head.ID, 0)
	require.NoError(t, err)
	_, err = l.SetDepartmentManager(ctx, platform.ID, &lead.ID, 0)
	require.NoError(t, err)

	mgr, err := l.GetDirectManager(ctx, dev.ID)
	require.NoError(t, err)
	require.NotNil(t, mgr)
	assert.Equal(t, lead.ID, mgr.ID)

	mgr, err = l.GetDirectManager(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, mgr)
	assert.Equal(t, head.ID, mgr.ID)

	for _, u := range []*User{head, loner} {
		mgr, err = l.GetDirectManager(ctx, u.ID)
		require.NoError(t, err)
		assert.Nil(t, mgr)
	}

	subs, err := l.GetSubordinates(ctx, head.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{lead.ID, analyst.ID}, userIDs(subs))

	subs, err = l.GetSubordinates(ctx, dev.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	rs, err := l.GetReportingStructure(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, platform.ID, rs.Department.ID)
	assert.Equal(t, []uint{lead.ID, head.ID}, userIDs(rs.ManagerChain))
	assert.Len(t, rs.Breadcrumb, 2)
	assert.Empty(t, rs.Subordinates)

	_, err = l.GetDirectManager(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func userIDs(users []User) []uint {
	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}
