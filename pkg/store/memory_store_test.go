package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"portfoliohub/pkg/domain"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, s Store, id string, role domain.UserRole) domain.User {
	t.Helper()
	u := domain.User{
		ID: id, Email: id + "@studio.test", Name: id, Role: role, IsActive: true,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}

func seedProject(t *testing.T, s Store, id, authorID string, mutate func(*domain.Project)) domain.Project {
	t.Helper()
	p := domain.Project{
		ID: id, Title: "Project " + id, Slug: "project-" + id, AuthorID: authorID,
		Category: domain.CategoryArchitecture, Status: domain.ProjectDraft,
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	if mutate != nil {
		mutate(&p)
	}
	if err := s.CreateProject(p); err != nil {
		t.Fatalf("create project %s: %v", id, err)
	}
	return p
}

func TestMemoryStoreUserEmailUnique(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "u1", domain.RoleUser)
	dup := domain.User{ID: "u2", Email: "u1@studio.test", Role: domain.RoleUser}
	err := s.CreateUser(dup)
	if !errors.Is(err, ErrConflict) || ConstraintOf(err) != ConstraintUserEmail {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if ok, _ := s.HasUserEmail("u1@studio.test"); !ok {
		t.Fatalf("expected email to exist")
	}
}

func TestMemoryStoreLikeUniquePerUser(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "author", domain.RoleCrafter)
	seedUser(t, s, "fan", domain.RoleUser)
	seedProject(t, s, "p1", "author", nil)

	if err := s.CreateLike(domain.Like{ID: "l1", ProjectID: "p1", UserID: "fan"}); err != nil {
		t.Fatalf("first like: %v", err)
	}
	err := s.CreateLike(domain.Like{ID: "l2", ProjectID: "p1", UserID: "fan"})
	if !errors.Is(err, ErrConflict) || ConstraintOf(err) != ConstraintLikeProjectUser {
		t.Fatalf("expected duplicate like conflict, got %v", err)
	}
	if err := s.CreateLike(domain.Like{ID: "l3", ProjectID: "missing", UserID: "fan"}); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
	counts, _ := s.LikeCounts([]string{"p1"})
	if counts["p1"] != 1 {
		t.Fatalf("expected 1 like, got %d", counts["p1"])
	}
	removed, err := s.DeleteLike("p1", "fan")
	if err != nil || !removed {
		t.Fatalf("delete like: removed=%v err=%v", removed, err)
	}
	if removed, _ := s.DeleteLike("p1", "fan"); removed {
		t.Fatalf("second delete should report nothing removed")
	}
}

func TestMemoryStoreDeleteUserRestrictedByAuthoredProjects(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "author", domain.RoleCrafter)
	seedProject(t, s, "p1", "author", nil)

	err := s.DeleteUser("author")
	if !errors.Is(err, ErrRestricted) || ConstraintOf(err) != ConstraintProjectAuthor {
		t.Fatalf("expected restricted delete, got %v", err)
	}
	if err := s.DeleteProject("p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if err := s.DeleteUser("author"); err != nil {
		t.Fatalf("delete user after projects removed: %v", err)
	}
}

func TestMemoryStoreDeleteUserCascades(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "author", domain.RoleCrafter)
	seedUser(t, s, "staff", domain.RoleEmployee)
	seedProject(t, s, "p1", "author", nil)

	if err := s.CreateEmployeeProfile(domain.EmployeeProfile{ID: "e1", UserID: "staff", EmployeeID: "EMP-1", Department: "Design"}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := s.CreateComment(domain.Comment{ID: "c1", ProjectID: "p1", AuthorID: "staff", Content: "hi"}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if err := s.CreateComment(domain.Comment{ID: "c2", ProjectID: "p1", AuthorID: "author", ParentID: "c1", Content: "reply"}); err != nil {
		t.Fatalf("create reply: %v", err)
	}
	if err := s.CreateLike(domain.Like{ID: "l1", ProjectID: "p1", UserID: "staff"}); err != nil {
		t.Fatalf("create like: %v", err)
	}
	if err := s.CreateAsset(domain.ProjectAsset{ID: "a1", ProjectID: "p1", UploaderID: "staff", Type: domain.AssetImage}); err != nil {
		t.Fatalf("create asset: %v", err)
	}

	if err := s.DeleteUser("staff"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, ok, _ := s.GetEmployeeProfileByUser("staff"); ok {
		t.Fatalf("profile should cascade")
	}
	if _, ok, _ := s.GetComment("c2"); ok {
		t.Fatalf("reply to a deleted comment should cascade")
	}
	if liked, _ := s.HasLike("p1", "staff"); liked {
		t.Fatalf("like should cascade")
	}
	asset, ok, _ := s.GetAsset("a1")
	if !ok || asset.UploaderID != "" {
		t.Fatalf("asset should survive with uploader cleared, got %+v ok=%v", asset, ok)
	}
}

func TestMemoryStoreCommentReplies(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "author", domain.RoleCrafter)
	seedProject(t, s, "p1", "author", nil)
	seedProject(t, s, "p2", "author", nil)

	mk := func(id, project, parent string, offset time.Duration) domain.Comment {
		return domain.Comment{ID: id, ProjectID: project, AuthorID: "author", ParentID: parent, Content: id, CreatedAt: baseTime.Add(offset)}
	}
	if err := s.CreateComment(mk("root", "p1", "", 0)); err != nil {
		t.Fatalf("root: %v", err)
	}
	if err := s.CreateComment(mk("child", "p1", "root", time.Minute)); err != nil {
		t.Fatalf("child: %v", err)
	}
	if err := s.CreateComment(mk("grandchild", "p1", "child", 2*time.Minute)); err != nil {
		t.Fatalf("grandchild: %v", err)
	}
	if err := s.CreateComment(mk("cross", "p2", "root", 0)); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("parent from another project must be rejected, got %v", err)
	}

	top, total, err := s.ListComments(CommentFilter{ProjectID: "p1", TopLevelOnly: true}, Page{})
	if err != nil || total != 1 || top[0].ID != "root" {
		t.Fatalf("unexpected top-level list: %+v total=%d err=%v", top, total, err)
	}
	if err := s.DeleteComment("root"); err != nil {
		t.Fatalf("delete root: %v", err)
	}
	if _, all, _ := s.ListComments(CommentFilter{ProjectID: "p1"}, Page{}); all != 0 {
		t.Fatalf("expected whole thread removed, %d left", all)
	}
}

func TestMemoryStoreListProjectsFilterSortPage(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "author", domain.RoleCrafter)
	published := baseTime.Add(time.Hour)
	for i := 0; i < 5; i++ {
		i := i
		seedProject(t, s, fmt.Sprintf("p%d", i), "author", func(p *domain.Project) {
			p.ViewCount = int64(i * 10)
			p.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
			p.Keywords = []string{"concrete"}
			if i%2 == 0 {
				p.Status = domain.ProjectPublished
				p.PublishedAt = &published
			}
		})
	}

	items, total, err := s.ListProjects(ProjectQuery{
		Filter: ProjectFilter{Statuses: []domain.ProjectStatus{domain.ProjectPublished}},
		Sort:   Sort{Field: "viewCount", Desc: true},
		Page:   Page{Limit: 2},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].ID != "p4" || items[1].ID != "p2" {
		t.Fatalf("unexpected page: total=%d items=%+v", total, items)
	}

	if _, _, err := s.ListProjects(ProjectQuery{Sort: Sort{Field: "passwordHash"}}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected unknown sort field rejected, got %v", err)
	}

	items, _, _ = s.ListProjects(ProjectQuery{Sort: Sort{Field: "publishedAt", Desc: true}})
	if last := items[len(items)-1]; last.PublishedAt != nil {
		t.Fatalf("unpublished projects should sort last, got %s", last.ID)
	}

	items, total, _ = s.ListProjects(ProjectQuery{Filter: ProjectFilter{Keyword: "concrete", Search: "project p3"}})
	if total != 1 || items[0].ID != "p3" {
		t.Fatalf("unexpected search result: %+v", items)
	}
}

func TestMemoryStoreProjectTagsAndUsage(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "author", domain.RoleCrafter)
	seedProject(t, s, "p1", "author", nil)
	seedProject(t, s, "p2", "author", nil)
	for _, tag := range []domain.Tag{{ID: "t1", Name: "Brick", Slug: "brick"}, {ID: "t2", Name: "Timber", Slug: "timber"}} {
		if err := s.CreateTag(tag); err != nil {
			t.Fatalf("create tag: %v", err)
		}
	}
	if err := s.CreateTag(domain.Tag{ID: "t3", Name: "Other", Slug: "brick"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected slug conflict, got %v", err)
	}
	if err := s.SetProjectTags("p1", []string{"t1", "t2", "t1"}); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	if err := s.SetProjectTags("p2", []string{"t2"}); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	if err := s.SetProjectTags("p2", []string{"nope"}); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected invalid tag reference, got %v", err)
	}

	tags, _ := s.ListProjectTags("p1")
	if len(tags) != 2 || tags[0].Name != "Brick" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
	usage, _ := s.TagUsage()
	if usage[0].Tag.ID != "t2" || usage[0].ProjectCount != 2 || usage[1].ProjectCount != 1 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	items, total, _ := s.ListProjects(ProjectQuery{Filter: ProjectFilter{TagSlug: "brick"}})
	if total != 1 || items[0].ID != "p1" {
		t.Fatalf("unexpected tag filter result: %+v", items)
	}

	if err := s.DeleteTag("t2"); err != nil {
		t.Fatalf("delete tag: %v", err)
	}
	if tags, _ := s.ListProjectTags("p2"); len(tags) != 0 {
		t.Fatalf("tag links should cascade, got %+v", tags)
	}
}

func TestMemoryStoreDeleteProjectCascades(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "author", domain.RoleCrafter)
	seedProject(t, s, "p1", "author", nil)
	_ = s.CreateAsset(domain.ProjectAsset{ID: "a1", ProjectID: "p1", Type: domain.AssetDrawing})
	_ = s.CreateComment(domain.Comment{ID: "c1", ProjectID: "p1", AuthorID: "author"})
	_ = s.CreateLike(domain.Like{ID: "l1", ProjectID: "p1", UserID: "author"})

	if err := s.DeleteProject("p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, ok, _ := s.GetAsset("a1"); ok {
		t.Fatalf("asset should cascade")
	}
	if _, ok, _ := s.GetComment("c1"); ok {
		t.Fatalf("comment should cascade")
	}
	if err := s.DeleteProject("p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreAggregates(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "a", domain.RoleCrafter)
	seedUser(t, s, "b", domain.RoleEmployee)
	seedUser(t, s, "c", domain.RoleEmployee)
	seedProject(t, s, "p1", "a", func(p *domain.Project) { p.ViewCount = 10; p.IsFeatured = true })
	seedProject(t, s, "p2", "a", func(p *domain.Project) { p.ViewCount = 30; p.Category = domain.CategoryLandscape })

	stats, err := s.ProjectStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Featured != 1 || stats.TotalViews != 40 || stats.AvgViews != 20 || stats.MaxViews != 30 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByCategory[domain.CategoryLandscape] != 1 || stats.ByStatus[domain.ProjectDraft] != 2 {
		t.Fatalf("unexpected groups: %+v", stats)
	}

	for i, uid := range []string{"b", "c"} {
		p := domain.EmployeeProfile{
			ID: "e" + uid, UserID: uid, EmployeeID: "EMP-" + uid, Department: "Design",
			Salary: decimal.NewFromInt(int64(1000 * (i + 1))),
		}
		if err := s.CreateEmployeeProfile(p); err != nil {
			t.Fatalf("profile: %v", err)
		}
	}
	salaries, _ := s.SalaryStatsByDepartment()
	if len(salaries) != 1 || salaries[0].Headcount != 2 || !salaries[0].Average.Equal(decimal.NewFromInt(1500)) ||
		!salaries[0].Min.Equal(decimal.NewFromInt(1000)) || !salaries[0].Max.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected salary stats: %+v", salaries)
	}

	roles, _ := s.CountUsersByRole()
	if roles[domain.RoleEmployee] != 2 || roles[domain.RoleCrafter] != 1 {
		t.Fatalf("unexpected role counts: %+v", roles)
	}
}

func TestMemoryStoreNewsletterUpsertKeepsToken(t *testing.T) {
	s := NewMemoryStore()
	first := domain.Newsletter{ID: "n1", Email: "a@b.test", IsActive: true, UnsubscribeToken: "tok-1", SubscribedAt: baseTime}
	if err := s.SaveSubscription(first); err != nil {
		t.Fatalf("save: %v", err)
	}
	again := domain.Newsletter{ID: "n2", Email: "a@b.test", IsActive: false, UnsubscribeToken: "tok-2", SubscribedAt: baseTime}
	if err := s.SaveSubscription(again); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, _ := s.GetSubscriptionByToken("tok-1")
	if !ok || got.ID != "n1" || got.IsActive {
		t.Fatalf("unexpected subscription: %+v ok=%v", got, ok)
	}
	if n, _ := s.CountActiveSubscriptions(); n != 0 {
		t.Fatalf("expected no active subscriptions, got %d", n)
	}
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		in   Page
		want Page
	}{
		{Page{}, Page{Limit: DefaultPageLimit}},
		{Page{Limit: 500, Offset: -3}, Page{Limit: MaxPageLimit}},
		{Page{Limit: 5, Offset: 10}, Page{Limit: 5, Offset: 10}},
	}
	for _, tc := range tests {
		if got := tc.in.Normalize(); got != tc.want {
			t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
