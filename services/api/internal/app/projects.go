package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/store"
)

const (
	maxKeywords       = 20
	maxSlugAttempts   = 50
	maxContentLength  = 100_000
	maxSummaryLength  = 500
	maxMetaTitle      = 70
	maxMetaDesc       = 160
	minProjectYear    = 1800
	maxProjectYear    = 2200
	maxShortTextField = 200
)

// ProjectInput is the full editable state of a project.
type ProjectInput struct {
	Title           string
	Slug            string
	Summary         string
	Content         string
	Category        domain.ProjectCategory
	Status          domain.ProjectStatus
	CoverImageURL   string
	Location        string
	ClientName      string
	Year            int
	MetaTitle       string
	MetaDescription string
	Keywords        []string
	IsFeatured      bool
	FeaturedOrder   int
	// TagIDs replaces the tag set when non-nil.
	TagIDs []string
}

// ProjectPatch changes only the non-nil fields.
type ProjectPatch struct {
	Title           *string
	Slug            *string
	Summary         *string
	Content         *string
	Category        *domain.ProjectCategory
	Status          *domain.ProjectStatus
	CoverImageURL   *string
	Location        *string
	ClientName      *string
	Year            *int
	MetaTitle       *string
	MetaDescription *string
	Keywords        []string
	IsFeatured      *bool
	FeaturedOrder   *int
	TagIDs          []string
}

// ProjectSummary is a list entry with engagement counts.
type ProjectSummary struct {
	domain.Project
	LikeCount    int `json:"likeCount"`
	CommentCount int `json:"commentCount"`
}

// ProjectDetail is the public project page.
type ProjectDetail struct {
	domain.Project
	Assets       []domain.ProjectAsset `json:"assets"`
	Tags         []domain.Tag          `json:"tags"`
	LikeCount    int                   `json:"likeCount"`
	CommentCount int                   `json:"commentCount"`
	LikedByMe    bool                  `json:"likedByMe"`
}

// ListPublishedProjects lists what visitors may see.
func (a *App) ListPublishedProjects(q store.ProjectQuery) ([]ProjectSummary, int, error) {
	q.Filter.Statuses = []domain.ProjectStatus{domain.ProjectPublished}
	q.Filter.AuthorID = ""
	return a.listProjects(q, true)
}

// ListProjectsForStaff lists projects of any status.
func (a *App) ListProjectsForStaff(actor domain.User, q store.ProjectQuery) ([]ProjectSummary, int, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return nil, 0, err
	}
	for _, s := range q.Filter.Statuses {
		if !s.Valid() {
			return nil, 0, invalid("status", "unknown status %q", s)
		}
	}
	return a.listProjects(q, false)
}

func (a *App) listProjects(q store.ProjectQuery, approvedComments bool) ([]ProjectSummary, int, error) {
	if q.Filter.Category != "" && !q.Filter.Category.Valid() {
		return nil, 0, invalid("category", "unknown category %q", q.Filter.Category)
	}
	q.Filter.Search = strings.TrimSpace(q.Filter.Search)
	q.Filter.Keyword = strings.ToLower(strings.TrimSpace(q.Filter.Keyword))
	q.Page = q.Page.Normalize()
	projects, total, err := a.store.ListProjects(q)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", mapStoreErr(err))
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	likes, err := a.store.LikeCounts(ids)
	if err != nil {
		return nil, 0, fmt.Errorf("count likes: %w", err)
	}
	comments, err := a.store.CommentCounts(ids, approvedComments)
	if err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}
	out := make([]ProjectSummary, len(projects))
	for i, p := range projects {
		out[i] = ProjectSummary{Project: p, LikeCount: likes[p.ID], CommentCount: comments[p.ID]}
	}
	return out, total, nil
}

// GetPublishedProject loads a public project page and records a view for
// viewer (a client address). viewerID is the signed-in user, if any.
func (a *App) GetPublishedProject(ctx context.Context, slug, viewer, viewerID string) (ProjectDetail, error) {
	p, err := a.publishedProject(slug)
	if err != nil {
		return ProjectDetail{}, err
	}
	detail, err := a.projectDetail(p, viewerID, true)
	if err != nil {
		return ProjectDetail{}, err
	}
	a.recordView(ctx, p.ID, viewer)
	return detail, nil
}

// GetProjectForStaff loads any project by id.
func (a *App) GetProjectForStaff(actor domain.User, id string) (ProjectDetail, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return ProjectDetail{}, err
	}
	p, err := a.projectByID(id)
	if err != nil {
		return ProjectDetail{}, err
	}
	return a.projectDetail(p, actor.ID, false)
}

func (a *App) projectDetail(p domain.Project, viewerID string, approvedComments bool) (ProjectDetail, error) {
	assets, err := a.store.ListAssetsByProject(p.ID)
	if err != nil {
		return ProjectDetail{}, fmt.Errorf("list assets: %w", err)
	}
	tags, err := a.store.ListProjectTags(p.ID)
	if err != nil {
		return ProjectDetail{}, fmt.Errorf("list tags: %w", err)
	}
	likes, err := a.store.LikeCounts([]string{p.ID})
	if err != nil {
		return ProjectDetail{}, fmt.Errorf("count likes: %w", err)
	}
	comments, err := a.store.CommentCounts([]string{p.ID}, approvedComments)
	if err != nil {
		return ProjectDetail{}, fmt.Errorf("count comments: %w", err)
	}
	detail := ProjectDetail{
		Project:      p,
		Assets:       assets,
		Tags:         tags,
		LikeCount:    likes[p.ID],
		CommentCount: comments[p.ID],
	}
	if viewerID != "" {
		if detail.LikedByMe, err = a.store.HasLike(p.ID, viewerID); err != nil {
			return ProjectDetail{}, fmt.Errorf("check like: %w", err)
		}
	}
	return detail, nil
}

func (a *App) recordView(ctx context.Context, projectID, viewer string) {
	logger := util.LoggerFromContext(ctx)
	if a.views == nil {
		if err := a.store.IncrementProjectViews(projectID, 1); err != nil {
			logger.Warn("record_view_failed", "project_id", projectID, "err", err)
		}
		return
	}
	if _, err := a.views.Record(ctx, projectID, viewer); err != nil {
		logger.Warn("record_view_failed", "project_id", projectID, "err", err)
	}
}

// CreateProject validates input, derives a unique slug from the title when
// none is given and assigns the actor as author.
func (a *App) CreateProject(ctx context.Context, actor domain.User, in ProjectInput) (domain.Project, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return domain.Project{}, err
	}
	if in.Status == "" {
		in.Status = domain.ProjectDraft
	}
	now := a.now()
	p := domain.Project{ID: util.NewID(), AuthorID: actor.ID, CreatedAt: now, UpdatedAt: now}
	if err := applyProjectInput(&p, in); err != nil {
		return domain.Project{}, err
	}
	if err := a.checkStatusChange(actor, "", p.Status); err != nil {
		return domain.Project{}, err
	}
	if err := a.checkFeatureChange(actor, false, p.IsFeatured); err != nil {
		return domain.Project{}, err
	}
	explicitSlug := strings.TrimSpace(in.Slug) != ""
	slug, err := a.uniqueSlug(p.Slug, explicitSlug)
	if err != nil {
		return domain.Project{}, err
	}
	p.Slug = slug
	if p.Status == domain.ProjectPublished {
		p.PublishedAt = &now
	}
	if err := checkIDs("tagIds", in.TagIDs); err != nil {
		return domain.Project{}, err
	}
	if err := a.store.CreateProjectWithTags(p, in.TagIDs); err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", mapStoreErr(err))
	}
	if p.Status == domain.ProjectPublished {
		a.emitPublished(ctx, p)
	}
	return p, nil
}

// UpdateProject applies a patch. Crafters may only edit their own projects;
// publishing and featuring require the publish permission.
func (a *App) UpdateProject(ctx context.Context, actor domain.User, id string, patch ProjectPatch) (domain.Project, error) {
	p, err := a.editableProject(actor, id)
	if err != nil {
		return domain.Project{}, err
	}
	in := patch.merge(p)
	prevStatus, prevFeatured, prevSlug := p.Status, p.IsFeatured, p.Slug
	if err := applyProjectInput(&p, in); err != nil {
		return domain.Project{}, err
	}
	if err := a.checkStatusChange(actor, prevStatus, p.Status); err != nil {
		return domain.Project{}, err
	}
	if err := a.checkFeatureChange(actor, prevFeatured, p.IsFeatured); err != nil {
		return domain.Project{}, err
	}
	if p.Slug != prevSlug {
		taken, err := a.store.HasProjectSlug(p.Slug)
		if err != nil {
			return domain.Project{}, fmt.Errorf("check slug: %w", err)
		}
		if taken {
			return domain.Project{}, ErrSlugTaken
		}
	}
	now := a.now()
	published := p.Status == domain.ProjectPublished && prevStatus != domain.ProjectPublished
	if published && p.PublishedAt == nil {
		p.PublishedAt = &now
	}
	p.UpdatedAt = now
	if err := checkIDs("tagIds", patch.TagIDs); err != nil {
		return domain.Project{}, err
	}
	if err := a.store.UpdateProjectWithTags(p, patch.TagIDs); err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", mapStoreErr(err))
	}
	if published {
		a.emitPublished(ctx, p)
	}
	return p, nil
}

// SetProjectTags replaces a project's tags.
func (a *App) SetProjectTags(actor domain.User, id string, tagIDs []string) ([]domain.Tag, error) {
	if _, err := a.editableProject(actor, id); err != nil {
		return nil, err
	}
	if tagIDs == nil {
		tagIDs = []string{}
	}
	if err := checkIDs("tagIds", tagIDs); err != nil {
		return nil, err
	}
	if err := a.store.SetProjectTags(id, tagIDs); err != nil {
		return nil, fmt.Errorf("set tags: %w", mapStoreErr(err))
	}
	tags, err := a.store.ListProjectTags(id)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// DeleteProject removes the project, its dependent rows and stored objects.
func (a *App) DeleteProject(ctx context.Context, actor domain.User, id string) error {
	if _, err := a.editableProject(actor, id); err != nil {
		return err
	}
	assets, err := a.store.ListAssetsByProject(id)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}
	if err := a.store.DeleteProject(id); err != nil {
		return fmt.Errorf("delete project: %w", mapStoreErr(err))
	}
	for _, asset := range assets {
		a.removeObjects(ctx, asset)
	}
	return nil
}

func (a *App) emitPublished(ctx context.Context, p domain.Project) {
	a.emit(ctx, events.ProjectPublished, map[string]any{
		"projectId": p.ID,
		"slug":      p.Slug,
		"title":     p.Title,
		"authorId":  p.AuthorID,
	})
}

func (a *App) checkStatusChange(actor domain.User, from, to domain.ProjectStatus) error {
	if from == to {
		return nil
	}
	if (to == domain.ProjectPublished || to == domain.ProjectArchived || from == domain.ProjectPublished) &&
		!actor.Role.Can(domain.PermPublishProjects) {
		return ErrForbidden
	}
	return nil
}

func (a *App) checkFeatureChange(actor domain.User, from, to bool) error {
	if from != to && !actor.Role.Can(domain.PermPublishProjects) {
		return ErrForbidden
	}
	return nil
}

func (a *App) editableProject(actor domain.User, id string) (domain.Project, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return domain.Project{}, err
	}
	p, err := a.projectByID(id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.AuthorID != actor.ID && !actor.Role.CanEditAnyProject() {
		return domain.Project{}, ErrForbidden
	}
	return p, nil
}

func (a *App) projectByID(id string) (domain.Project, error) {
	p, ok, err := a.store.GetProject(id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	return p, nil
}

func (a *App) publishedProject(slug string) (domain.Project, error) {
	p, ok, err := a.store.GetProjectBySlug(strings.TrimSpace(slug))
	if err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	if !ok || p.Status != domain.ProjectPublished {
		return domain.Project{}, ErrNotFound
	}
	return p, nil
}

// uniqueSlug returns base when free. Derived slugs get a numeric suffix;
// an explicitly requested slug that is taken fails with ErrSlugTaken.
func (a *App) uniqueSlug(base string, explicit bool) (string, error) {
	for i := 1; i <= maxSlugAttempts; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := a.store.HasProjectSlug(candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		if explicit {
			return "", ErrSlugTaken
		}
	}
	return "", ErrSlugTaken
}

func (patch ProjectPatch) merge(p domain.Project) ProjectInput {
	in := ProjectInput{
		Title: p.Title, Slug: p.Slug, Summary: p.Summary, Content: p.Content,
		Category: p.Category, Status: p.Status, CoverImageURL: p.CoverImageURL,
		Location: p.Location, ClientName: p.ClientName, Year: p.Year,
		MetaTitle: p.MetaTitle, MetaDescription: p.MetaDescription,
		Keywords: p.Keywords, IsFeatured: p.IsFeatured, FeaturedOrder: p.FeaturedOrder,
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&in.Title, patch.Title)
	set(&in.Slug, patch.Slug)
	set(&in.Summary, patch.Summary)
	set(&in.Content, patch.Content)
	set(&in.CoverImageURL, patch.CoverImageURL)
	set(&in.Location, patch.Location)
	set(&in.ClientName, patch.ClientName)
	set(&in.MetaTitle, patch.MetaTitle)
	set(&in.MetaDescription, patch.MetaDescription)
	if patch.Category != nil {
		in.Category = *patch.Category
	}
	if patch.Status != nil {
		in.Status = *patch.Status
	}
	if patch.Year != nil {
		in.Year = *patch.Year
	}
	if patch.Keywords != nil {
		in.Keywords = patch.Keywords
	}
	if patch.IsFeatured != nil {
		in.IsFeatured = *patch.IsFeatured
	}
	if patch.FeaturedOrder != nil {
		in.FeaturedOrder = *patch.FeaturedOrder
	}
	return in
}

func applyProjectInput(p *domain.Project, in ProjectInput) error {
	title, err := requireText("title", in.Title, maxShortTextField)
	if err != nil {
		return err
	}
	slugSource := in.Slug
	if strings.TrimSpace(slugSource) == "" {
		slugSource = title
	}
	slug := util.Slugify(slugSource)
	if slug == "" {
		return invalid("slug", "must contain letters or digits")
	}
	if !in.Category.Valid() {
		return invalid("category", "unknown category %q", in.Category)
	}
	if !in.Status.Valid() {
		return invalid("status", "unknown status %q", in.Status)
	}
	if in.Year != 0 && (in.Year < minProjectYear || in.Year > maxProjectYear) {
		return invalid("year", "must be between %d and %d", minProjectYear, maxProjectYear)
	}
	if in.FeaturedOrder < 0 {
		return invalid("featuredOrder", "must not be negative")
	}
	fields := []struct {
		name string
		dst  *string
		src  string
		max  int
	}{
		{"summary", &p.Summary, util.PlainText(in.Summary), maxSummaryLength},
		{"content", &p.Content, strings.TrimSpace(in.Content), maxContentLength},
		{"coverImageUrl", &p.CoverImageURL, in.CoverImageURL, 500},
		{"location", &p.Location, in.Location, maxShortTextField},
		{"clientName", &p.ClientName, in.ClientName, maxShortTextField},
		{"metaTitle", &p.MetaTitle, in.MetaTitle, maxMetaTitle},
		{"metaDescription", &p.MetaDescription, in.MetaDescription, maxMetaDesc},
	}
	for _, f := range fields {
		v, err := optionalText(f.name, f.src, f.max)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	keywords, err := normalizeKeywords(in.Keywords)
	if err != nil {
		return err
	}
	p.Title = title
	p.Slug = slug
	p.Category = in.Category
	p.Status = in.Status
	p.Year = in.Year
	p.Keywords = keywords
	p.IsFeatured = in.IsFeatured
	p.FeaturedOrder = in.FeaturedOrder
	return nil
}

func normalizeKeywords(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || slices.Contains(out, k) {
			continue
		}
		if len(k) > 50 {
			return nil, invalid("keywords", "keyword %q is longer than 50 characters", k)
		}
		out = append(out, k)
	}
	if len(out) > maxKeywords {
		return nil, invalid("keywords", "at most %d keywords", maxKeywords)
	}
	return out, nil
}

// isNotFound reports app or store not-found errors.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, store.ErrNotFound)
}
