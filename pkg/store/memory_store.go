package store

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"portfoliohub/pkg/domain"
)

// MemoryStore is an in-process Store for tests and local runs. It enforces the
// same uniqueness, reference and delete rules as the SQL schema.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	employees   map[string]domain.EmployeeProfile
	projects    map[string]domain.Project
	assets      map[string]domain.ProjectAsset
	tags        map[string]domain.Tag
	projectTags map[string]map[string]time.Time
	comments    map[string]domain.Comment
	likes       map[string]domain.Like
	inquiries   map[string]domain.ContactInquiry
	newsletters map[string]domain.Newsletter
	settings    map[string]domain.SiteSetting
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       map[string]domain.User{},
		employees:   map[string]domain.EmployeeProfile{},
		projects:    map[string]domain.Project{},
		assets:      map[string]domain.ProjectAsset{},
		tags:        map[string]domain.Tag{},
		projectTags: map[string]map[string]time.Time{},
		comments:    map[string]domain.Comment{},
		likes:       map[string]domain.Like{},
		inquiries:   map[string]domain.ContactInquiry{},
		newsletters: map[string]domain.Newsletter{},
		settings:    map[string]domain.SiteSetting{},
	}
}

func pageOf[T any](items []T, page Page) ([]T, int) {
	page = page.Normalize()
	total := len(items)
	if page.Offset >= total {
		return []T{}, total
	}
	end := min(page.Offset+page.Limit, total)
	return items[page.Offset:end], total
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func timePtrCompare(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func cloneProject(p domain.Project) domain.Project {
	p.Keywords = append([]string{}, p.Keywords...)
	return p
}

// Users.

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return constraintErr(ErrConflict, "users_pkey")
	}
	if m.emailTaken(u.Email, u.ID) {
		return constraintErr(ErrConflict, ConstraintUserEmail)
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) CreateUserFirstRole(u domain.User, firstRole domain.UserRole) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return domain.User{}, constraintErr(ErrConflict, "users_pkey")
	}
	if m.emailTaken(u.Email, u.ID) {
		return domain.User{}, constraintErr(ErrConflict, ConstraintUserEmail)
	}
	if len(m.users) == 0 {
		u.Role = firstRole
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) emailTaken(email, exceptID string) bool {
	for id, u := range m.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (m *MemoryStore) UpdateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if m.emailTaken(u.Email, u.ID) {
		return constraintErr(ErrConflict, ConstraintUserEmail)
	}
	u.CreatedAt = existing.CreatedAt
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) GetUserByVerifyToken(tokenHash string) (domain.User, bool, error) {
	if tokenHash == "" {
		return domain.User{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.EmailVerifyToken == tokenHash {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	_, ok, err := m.GetUserByEmail(email)
	return ok, err
}

func (m *MemoryStore) ListUsers(filter UserFilter, page Page) ([]domain.User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.TrimSpace(filter.Search)
	var items []domain.User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		if search != "" && !containsFold(u.Email, search) && !containsFold(u.Name, search) {
			continue
		}
		items = append(items, u)
	}
	slices.SortFunc(items, func(a, b domain.User) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	out, total := pageOf(items, page)
	return out, total, nil
}

func (m *MemoryStore) CountUsersByRole() (map[domain.UserRole]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[domain.UserRole]int{}
	for _, u := range m.users {
		out[u.Role]++
	}
	return out, nil
}

func (m *MemoryStore) TouchUserActivity(id string, at time.Time, login bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	u.LastActiveAt = &at
	if login {
		u.LastLoginAt = &at
	}
	m.users[id] = u
	return nil
}

func (m *MemoryStore) SetUserRefreshToken(id, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = tokenHash
	m.users[id] = u
	return nil
}

func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	for _, p := range m.projects {
		if p.AuthorID == id {
			return constraintErr(ErrRestricted, ConstraintProjectAuthor)
		}
	}
	for pid, p := range m.employees {
		if p.UserID == id {
			delete(m.employees, pid)
		}
	}
	for cid, c := range m.comments {
		if c.AuthorID == id {
			m.deleteCommentTree(cid)
		}
	}
	for lid, l := range m.likes {
		if l.UserID == id {
			delete(m.likes, lid)
		}
	}
	for aid, a := range m.assets {
		if a.UploaderID == id {
			a.UploaderID = ""
			m.assets[aid] = a
		}
	}
	delete(m.users, id)
	return nil
}

// Employees.

func (m *MemoryStore) checkEmployee(p domain.EmployeeProfile) error {
	if _, ok := m.users[p.UserID]; !ok {
		return constraintErr(ErrInvalidReference, ConstraintEmployeeUserFK)
	}
	for id, other := range m.employees {
		if id == p.ID {
			continue
		}
		if other.UserID == p.UserID {
			return constraintErr(ErrConflict, ConstraintEmployeeUser)
		}
		if other.EmployeeID == p.EmployeeID {
			return constraintErr(ErrConflict, ConstraintEmployeeNumber)
		}
	}
	return nil
}

func (m *MemoryStore) CreateEmployeeProfile(p domain.EmployeeProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[p.ID]; ok {
		return constraintErr(ErrConflict, "employee_profiles_pkey")
	}
	if err := m.checkEmployee(p); err != nil {
		return err
	}
	m.employees[p.ID] = p
	return nil
}

func (m *MemoryStore) UpdateEmployeeProfile(p domain.EmployeeProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.employees[p.ID]
	if !ok {
		return ErrNotFound
	}
	if err := m.checkEmployee(p); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	m.employees[p.ID] = p
	return nil
}

func (m *MemoryStore) GetEmployeeProfile(id string) (domain.EmployeeProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.employees[id]
	return p, ok, nil
}

func (m *MemoryStore) GetEmployeeProfileByUser(userID string) (domain.EmployeeProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.employees {
		if p.UserID == userID {
			return p, true, nil
		}
	}
	return domain.EmployeeProfile{}, false, nil
}

func (m *MemoryStore) ListEmployeeProfiles(filter EmployeeFilter, page Page) ([]domain.EmployeeProfile, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []domain.EmployeeProfile
	for _, p := range m.employees {
		if filter.Department != "" && p.Department != filter.Department {
			continue
		}
		items = append(items, p)
	}
	slices.SortFunc(items, func(a, b domain.EmployeeProfile) int {
		return cmp.Or(cmp.Compare(a.Department, b.Department), cmp.Compare(a.EmployeeID, b.EmployeeID))
	})
	out, total := pageOf(items, page)
	return out, total, nil
}

func (m *MemoryStore) DeleteEmployeeProfile(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[id]; !ok {
		return ErrNotFound
	}
	delete(m.employees, id)
	return nil
}

func (m *MemoryStore) SalaryStatsByDepartment() ([]DepartmentSalaryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := map[string]*DepartmentSalaryStats{}
	for _, p := range m.employees {
		g, ok := groups[p.Department]
		if !ok {
			g = &DepartmentSalaryStats{Department: p.Department, Min: p.Salary, Max: p.Salary}
			groups[p.Department] = g
		}
		g.Headcount++
		g.Total = g.Total.Add(p.Salary)
		if p.Salary.LessThan(g.Min) {
			g.Min = p.Salary
		}
		if p.Salary.GreaterThan(g.Max) {
			g.Max = p.Salary
		}
	}
	out := make([]DepartmentSalaryStats, 0, len(groups))
	for _, g := range groups {
		g.Average = g.Total.Div(decimal.NewFromInt(int64(g.Headcount))).Round(2)
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b DepartmentSalaryStats) int { return cmp.Compare(a.Department, b.Department) })
	return out, nil
}

// Projects.

func (m *MemoryStore) CreateProject(p domain.Project) error {
	return m.CreateProjectWithTags(p, nil)
}

func (m *MemoryStore) CreateProjectWithTags(p domain.Project, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return constraintErr(ErrConflict, "projects_pkey")
	}
	if err := m.checkProject(p); err != nil {
		return err
	}
	if err := m.checkTags(tagIDs); err != nil {
		return err
	}
	m.projects[p.ID] = cloneProject(p)
	if tagIDs != nil {
		m.replaceProjectTags(p.ID, tagIDs)
	}
	return nil
}

func (m *MemoryStore) checkProject(p domain.Project) error {
	if _, ok := m.users[p.AuthorID]; !ok {
		return constraintErr(ErrInvalidReference, ConstraintProjectAuthor)
	}
	for id, other := range m.projects {
		if id != p.ID && other.Slug == p.Slug {
			return constraintErr(ErrConflict, ConstraintProjectSlug)
		}
	}
	return nil
}

func (m *MemoryStore) UpdateProject(p domain.Project) error {
	return m.UpdateProjectWithTags(p, nil)
}

func (m *MemoryStore) UpdateProjectWithTags(p domain.Project, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[p.ID]
	if !ok {
		return ErrNotFound
	}
	if err := m.checkProject(p); err != nil {
		return err
	}
	if err := m.checkTags(tagIDs); err != nil {
		return err
	}
	p.CreatedAt = existing.CreatedAt
	m.projects[p.ID] = cloneProject(p)
	if tagIDs != nil {
		m.replaceProjectTags(p.ID, tagIDs)
	}
	return nil
}

func (m *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, false, nil
	}
	return cloneProject(p), true, nil
}

func (m *MemoryStore) GetProjectBySlug(slug string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.Slug == slug {
			return cloneProject(p), true, nil
		}
	}
	return domain.Project{}, false, nil
}

func (m *MemoryStore) HasProjectSlug(slug string) (bool, error) {
	_, ok, err := m.GetProjectBySlug(slug)
	return ok, err
}

func (m *MemoryStore) projectHasTagSlug(projectID, slug string) bool {
	for tagID := range m.projectTags[projectID] {
		if m.tags[tagID].Slug == slug {
			return true
		}
	}
	return false
}

func (m *MemoryStore) matchProject(p domain.Project, f ProjectFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, p.Status) {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.AuthorID != "" && p.AuthorID != f.AuthorID {
		return false
	}
	if f.Featured != nil && p.IsFeatured != *f.Featured {
		return false
	}
	if f.TagSlug != "" && !m.projectHasTagSlug(p.ID, f.TagSlug) {
		return false
	}
	if f.Keyword != "" && !slices.Contains(p.Keywords, f.Keyword) {
		return false
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		if !containsFold(p.Title, search) && !containsFold(p.Summary, search) &&
			!containsFold(p.Location, search) && !containsFold(p.ClientName, search) {
			return false
		}
	}
	return true
}

func compareProjects(col string, a, b domain.Project) int {
	switch col {
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "published_at":
		return timePtrCompare(a.PublishedAt, b.PublishedAt)
	case "title":
		return cmp.Compare(a.Title, b.Title)
	case "view_count":
		return cmp.Compare(a.ViewCount, b.ViewCount)
	case "featured_order":
		return cmp.Compare(a.FeaturedOrder, b.FeaturedOrder)
	case "year":
		return cmp.Compare(a.Year, b.Year)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (m *MemoryStore) ListProjects(q ProjectQuery) ([]domain.Project, int, error) {
	col, desc, err := projectSortColumn(q.Sort)
	if err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []domain.Project
	for _, p := range m.projects {
		if m.matchProject(p, q.Filter) {
			items = append(items, cloneProject(p))
		}
	}
	slices.SortFunc(items, func(a, b domain.Project) int {
		c := compareProjects(col, a, b)
		// NULL published_at sorts last in both directions.
		if desc && !(col == "published_at" && (a.PublishedAt == nil || b.PublishedAt == nil)) {
			c = -c
		}
		return cmp.Or(c, cmp.Compare(a.ID, b.ID))
	})
	out, total := pageOf(items, q.Page)
	return out, total, nil
}

func (m *MemoryStore) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	for aid, a := range m.assets {
		if a.ProjectID == id {
			delete(m.assets, aid)
		}
	}
	for cid, c := range m.comments {
		if c.ProjectID == id {
			delete(m.comments, cid)
		}
	}
	for lid, l := range m.likes {
		if l.ProjectID == id {
			delete(m.likes, lid)
		}
	}
	delete(m.projectTags, id)
	delete(m.projects, id)
	return nil
}

func (m *MemoryStore) IncrementProjectViews(id string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.ViewCount += delta
	m.projects[id] = p
	return nil
}

func (m *MemoryStore) ProjectStats() (ProjectStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := ProjectStats{
		ByStatus:   map[domain.ProjectStatus]int{},
		ByCategory: map[domain.ProjectCategory]int{},
	}
	for _, p := range m.projects {
		stats.Total++
		if p.IsFeatured {
			stats.Featured++
		}
		stats.ByStatus[p.Status]++
		stats.ByCategory[p.Category]++
		stats.TotalViews += p.ViewCount
		stats.MaxViews = max(stats.MaxViews, p.ViewCount)
	}
	if stats.Total > 0 {
		stats.AvgViews = float64(stats.TotalViews) / float64(stats.Total)
	}
	return stats, nil
}

func (m *MemoryStore) SetProjectTags(projectID string, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return ErrNotFound
	}
	if err := m.checkTags(tagIDs); err != nil {
		return err
	}
	m.replaceProjectTags(projectID, tagIDs)
	return nil
}

func (m *MemoryStore) checkTags(tagIDs []string) error {
	for _, id := range dedupe(tagIDs) {
		if _, ok := m.tags[id]; !ok {
			return constraintErr(ErrInvalidReference, ConstraintProjectTagTag)
		}
	}
	return nil
}

func (m *MemoryStore) replaceProjectTags(projectID string, tagIDs []string) {
	ids := dedupe(tagIDs)
	now := time.Now().UTC()
	set := make(map[string]time.Time, len(ids))
	for _, id := range ids {
		set[id] = now
	}
	m.projectTags[projectID] = set
}

func (m *MemoryStore) ListProjectTags(projectID string) ([]domain.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Tag, 0, len(m.projectTags[projectID]))
	for tagID := range m.projectTags[projectID] {
		out = append(out, m.tags[tagID])
	}
	slices.SortFunc(out, func(a, b domain.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Assets.

func (m *MemoryStore) checkAsset(a domain.ProjectAsset) error {
	if _, ok := m.projects[a.ProjectID]; !ok {
		return constraintErr(ErrInvalidReference, ConstraintAssetProject)
	}
	if a.UploaderID != "" {
		if _, ok := m.users[a.UploaderID]; !ok {
			return constraintErr(ErrInvalidReference, ConstraintAssetUploader)
		}
	}
	return nil
}

func (m *MemoryStore) CreateAsset(a domain.ProjectAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[a.ID]; ok {
		return constraintErr(ErrConflict, "project_assets_pkey")
	}
	if err := m.checkAsset(a); err != nil {
		return err
	}
	m.assets[a.ID] = a
	return nil
}

func (m *MemoryStore) UpdateAssetDetails(a domain.ProjectAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.assets[a.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = a.Title
	existing.Description = a.Description
	existing.SortOrder = a.SortOrder
	existing.IsPrimary = a.IsPrimary
	existing.UpdatedAt = a.UpdatedAt
	m.assets[a.ID] = existing
	return nil
}

func (m *MemoryStore) UpdateAssetProcessing(id string, p AssetProcessing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.assets[id]
	if !ok {
		return ErrNotFound
	}
	existing.ProcessingStatus = p.Status
	existing.IsProcessed = p.IsProcessed
	existing.ProcessingError = p.Error
	existing.UpdatedAt = p.UpdatedAt
	if p.Result != nil {
		existing.Width = p.Result.Width
		existing.Height = p.Result.Height
		existing.PageCount = p.Result.PageCount
		existing.Metadata = slices.Clone(p.Result.Metadata)
	}
	m.assets[id] = existing
	return nil
}

func (m *MemoryStore) ClearOtherPrimaryAssets(projectID, keepID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for id, a := range m.assets {
		if a.ProjectID != projectID || id == keepID || !a.IsPrimary {
			continue
		}
		a.IsPrimary = false
		a.UpdatedAt = now
		m.assets[id] = a
	}
	return nil
}

func (m *MemoryStore) GetAsset(id string) (domain.ProjectAsset, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	return a, ok, nil
}

func (m *MemoryStore) ListAssetsByProject(projectID string) ([]domain.ProjectAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.ProjectAsset{}
	for _, a := range m.assets {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.ProjectAsset) int {
		return cmp.Or(cmp.Compare(a.SortOrder, b.SortOrder), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *MemoryStore) DeleteAsset(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[id]; !ok {
		return ErrNotFound
	}
	delete(m.assets, id)
	return nil
}

func (m *MemoryStore) CountAssetsByType(projectID string) (map[domain.AssetType]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[domain.AssetType]int{}
	for _, a := range m.assets {
		if projectID == "" || a.ProjectID == projectID {
			out[a.Type]++
		}
	}
	return out, nil
}

// Tags.

func (m *MemoryStore) CreateTag(t domain.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[t.ID]; ok {
		return constraintErr(ErrConflict, "tags_pkey")
	}
	for _, other := range m.tags {
		if other.Name == t.Name {
			return constraintErr(ErrConflict, ConstraintTagName)
		}
		if other.Slug == t.Slug {
			return constraintErr(ErrConflict, ConstraintTagSlug)
		}
	}
	m.tags[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTag(id string) (domain.Tag, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tags[id]
	return t, ok, nil
}

func (m *MemoryStore) GetTagBySlug(slug string) (domain.Tag, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tags {
		if t.Slug == slug {
			return t, true, nil
		}
	}
	return domain.Tag{}, false, nil
}

func (m *MemoryStore) ListTags() ([]domain.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Tag, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *MemoryStore) DeleteTag(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[id]; !ok {
		return ErrNotFound
	}
	for _, set := range m.projectTags {
		delete(set, id)
	}
	delete(m.tags, id)
	return nil
}

func (m *MemoryStore) TagUsage() ([]TagUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[string]int{}
	for _, set := range m.projectTags {
		for tagID := range set {
			counts[tagID]++
		}
	}
	out := make([]TagUsage, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, TagUsage{Tag: t, ProjectCount: counts[t.ID]})
	}
	slices.SortFunc(out, func(a, b TagUsage) int {
		return cmp.Or(cmp.Compare(b.ProjectCount, a.ProjectCount), cmp.Compare(a.Tag.Name, b.Tag.Name))
	})
	return out, nil
}

// Comments.

func (m *MemoryStore) CreateComment(c domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[c.ID]; ok {
		return constraintErr(ErrConflict, "comments_pkey")
	}
	if _, ok := m.projects[c.ProjectID]; !ok {
		return constraintErr(ErrInvalidReference, ConstraintCommentProject)
	}
	if _, ok := m.users[c.AuthorID]; !ok {
		return constraintErr(ErrInvalidReference, ConstraintCommentAuthor)
	}
	if c.ParentID != "" {
		parent, ok := m.comments[c.ParentID]
		if !ok || parent.ProjectID != c.ProjectID {
			return constraintErr(ErrInvalidReference, ConstraintCommentParent)
		}
	}
	m.comments[c.ID] = c
	return nil
}

func (m *MemoryStore) GetComment(id string) (domain.Comment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	return c, ok, nil
}

func (m *MemoryStore) ListComments(filter CommentFilter, page Page) ([]domain.Comment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []domain.Comment
	for _, c := range m.comments {
		if filter.ProjectID != "" && c.ProjectID != filter.ProjectID {
			continue
		}
		if filter.AuthorID != "" && c.AuthorID != filter.AuthorID {
			continue
		}
		if filter.Approved != nil && c.IsApproved != *filter.Approved {
			continue
		}
		if filter.TopLevelOnly && c.ParentID != "" {
			continue
		}
		items = append(items, c)
	}
	slices.SortFunc(items, func(a, b domain.Comment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	out, total := pageOf(items, page)
	return out, total, nil
}

func (m *MemoryStore) SetCommentApproval(id string, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.IsApproved = approved
	c.UpdatedAt = time.Now().UTC()
	m.comments[id] = c
	return nil
}

func (m *MemoryStore) DeleteComment(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return ErrNotFound
	}
	m.deleteCommentTree(id)
	return nil
}

func (m *MemoryStore) deleteCommentTree(id string) {
	delete(m.comments, id)
	for cid, c := range m.comments {
		if c.ParentID == id {
			m.deleteCommentTree(cid)
		}
	}
}

func (m *MemoryStore) CommentCounts(projectIDs []string, approvedOnly bool) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(projectIDs))
	for _, c := range m.comments {
		if approvedOnly && !c.IsApproved {
			continue
		}
		if slices.Contains(projectIDs, c.ProjectID) {
			out[c.ProjectID]++
		}
	}
	return out, nil
}

// Likes.

func (m *MemoryStore) CreateLike(l domain.Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[l.ProjectID]; !ok {
		return constraintErr(ErrInvalidReference, ConstraintLikeProject)
	}
	if _, ok := m.users[l.UserID]; !ok {
		return constraintErr(ErrInvalidReference, ConstraintLikeUser)
	}
	for _, other := range m.likes {
		if other.ProjectID == l.ProjectID && other.UserID == l.UserID {
			return constraintErr(ErrConflict, ConstraintLikeProjectUser)
		}
	}
	m.likes[l.ID] = l
	return nil
}

func (m *MemoryStore) DeleteLike(projectID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.likes {
		if l.ProjectID == projectID && l.UserID == userID {
			delete(m.likes, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) HasLike(projectID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.likes {
		if l.ProjectID == projectID && l.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) LikeCounts(projectIDs []string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(projectIDs))
	for _, l := range m.likes {
		if slices.Contains(projectIDs, l.ProjectID) {
			out[l.ProjectID]++
		}
	}
	return out, nil
}

// Inquiries.

func (m *MemoryStore) CreateInquiry(i domain.ContactInquiry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inquiries[i.ID]; ok {
		return constraintErr(ErrConflict, "contact_inquiries_pkey")
	}
	m.inquiries[i.ID] = i
	return nil
}

func (m *MemoryStore) GetInquiry(id string) (domain.ContactInquiry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.inquiries[id]
	return i, ok, nil
}

func (m *MemoryStore) ListInquiries(filter InquiryFilter, page Page) ([]domain.ContactInquiry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.TrimSpace(filter.Search)
	var items []domain.ContactInquiry
	for _, i := range m.inquiries {
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		if search != "" && !containsFold(i.Name, search) && !containsFold(i.Email, search) &&
			!containsFold(i.Subject, search) && !containsFold(i.Company, search) {
			continue
		}
		items = append(items, i)
	}
	slices.SortFunc(items, func(a, b domain.ContactInquiry) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	out, total := pageOf(items, page)
	return out, total, nil
}

func (m *MemoryStore) UpdateInquiry(i domain.ContactInquiry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.inquiries[i.ID]
	if !ok {
		return ErrNotFound
	}
	i.CreatedAt = existing.CreatedAt
	m.inquiries[i.ID] = i
	return nil
}

func (m *MemoryStore) DeleteInquiry(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inquiries[id]; !ok {
		return ErrNotFound
	}
	delete(m.inquiries, id)
	return nil
}

func (m *MemoryStore) CountInquiriesByStatus() (map[domain.InquiryStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[domain.InquiryStatus]int{}
	for _, i := range m.inquiries {
		out[i.Status]++
	}
	return out, nil
}

// Newsletter, keyed by email.

func (m *MemoryStore) SaveSubscription(n domain.Newsletter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.newsletters[n.Email]; ok {
		n.ID = existing.ID
		n.UnsubscribeToken = existing.UnsubscribeToken
		m.newsletters[n.Email] = n
		return nil
	}
	for _, other := range m.newsletters {
		if other.UnsubscribeToken == n.UnsubscribeToken {
			return constraintErr(ErrConflict, ConstraintNewsletterToken)
		}
	}
	m.newsletters[n.Email] = n
	return nil
}

func (m *MemoryStore) GetSubscriptionByEmail(email string) (domain.Newsletter, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.newsletters[email]
	return n, ok, nil
}

func (m *MemoryStore) GetSubscriptionByToken(token string) (domain.Newsletter, bool, error) {
	if token == "" {
		return domain.Newsletter{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.newsletters {
		if n.UnsubscribeToken == token {
			return n, true, nil
		}
	}
	return domain.Newsletter{}, false, nil
}

func (m *MemoryStore) ListSubscriptions(filter SubscriptionFilter, page Page) ([]domain.Newsletter, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []domain.Newsletter
	for _, n := range m.newsletters {
		if filter.ActiveOnly && !n.IsActive {
			continue
		}
		items = append(items, n)
	}
	slices.SortFunc(items, func(a, b domain.Newsletter) int {
		return cmp.Or(b.SubscribedAt.Compare(a.SubscribedAt), cmp.Compare(a.ID, b.ID))
	})
	out, total := pageOf(items, page)
	return out, total, nil
}

func (m *MemoryStore) CountActiveSubscriptions() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.newsletters {
		if n.IsActive {
			count++
		}
	}
	return count, nil
}

// Settings, keyed by Key.

func (m *MemoryStore) UpsertSetting(s domain.SiteSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.settings[s.Key]; ok {
		s.ID = existing.ID
	}
	m.settings[s.Key] = s
	return nil
}

func (m *MemoryStore) GetSetting(key string) (domain.SiteSetting, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[key]
	return s, ok, nil
}

func (m *MemoryStore) ListSettings(publicOnly bool) ([]domain.SiteSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SiteSetting, 0, len(m.settings))
	for _, s := range m.settings {
		if publicOnly && !s.IsPublic {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b domain.SiteSetting) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

func (m *MemoryStore) DeleteSetting(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[key]; !ok {
		return ErrNotFound
	}
	delete(m.settings, key)
	return nil
}
