package store

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"portfoliohub/pkg/domain"
)

// CreateProject inserts a project; the author must exist.
func (s *GormStore) CreateProject(p domain.Project) error {
	return s.CreateProjectWithTags(p, nil)
}

func (s *GormStore) UpdateProject(p domain.Project) error {
	return s.UpdateProjectWithTags(p, nil)
}

func (s *GormStore) CreateProjectWithTags(p domain.Project, tagIDs []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := projectToModel(p)
		if err := tx.Create(&model).Error; err != nil {
			return translateError(err)
		}
		if tagIDs == nil {
			return nil
		}
		return replaceProjectTags(tx, p.ID, tagIDs)
	})
}

func (s *GormStore) UpdateProjectWithTags(p domain.Project, tagIDs []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := projectToModel(p)
		if err := updateRow(tx, &model); err != nil {
			return err
		}
		if tagIDs == nil {
			return nil
		}
		return replaceProjectTags(tx, p.ID, tagIDs)
	})
}

func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	model, ok, err := findOne[ProjectModel](s.db, "id = ?", id)
	if err != nil || !ok {
		return domain.Project{}, ok, err
	}
	return projectFromModel(model), true, nil
}

func (s *GormStore) GetProjectBySlug(slug string) (domain.Project, bool, error) {
	model, ok, err := findOne[ProjectModel](s.db, "slug = ?", slug)
	if err != nil || !ok {
		return domain.Project{}, ok, err
	}
	return projectFromModel(model), true, nil
}

func (s *GormStore) HasProjectSlug(slug string) (bool, error) {
	var count int64
	if err := s.db.Model(&ProjectModel{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// projectListQuery builds the filtered statement and the ORDER BY clause.
func projectListQuery(db *gorm.DB, q ProjectQuery) (*gorm.DB, string, error) {
	col, desc, err := projectSortColumn(q.Sort)
	if err != nil {
		return nil, "", err
	}
	f := q.Filter
	tx := db.Model(&ProjectModel{})
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		tx = tx.Where("status IN ?", statuses)
	}
	if f.Category != "" {
		tx = tx.Where("category = ?", string(f.Category))
	}
	if f.AuthorID != "" {
		tx = tx.Where("author_id = ?", f.AuthorID)
	}
	if f.Featured != nil {
		tx = tx.Where("is_featured = ?", *f.Featured)
	}
	if f.TagSlug != "" {
		tx = tx.Where(`EXISTS (SELECT 1 FROM project_tags pt JOIN tags t ON t.id = pt.tag_id
			WHERE pt.project_id = projects.id AND t.slug = ?)`, f.TagSlug)
	}
	if f.Keyword != "" {
		tx = tx.Where("? = ANY(keywords)", f.Keyword)
	}
	if strings.TrimSpace(f.Search) != "" {
		pattern := likePattern(f.Search)
		tx = tx.Where("(title ILIKE ? OR summary ILIKE ? OR location ILIKE ? OR client_name ILIKE ?)",
			pattern, pattern, pattern, pattern)
	}
	order := col + " ASC"
	if desc {
		order = col + " DESC"
	}
	if col == "published_at" {
		order += " NULLS LAST"
	}
	return tx.Session(&gorm.Session{}), order + ", id ASC", nil
}

// ListProjects filters, sorts and pages projects.
func (s *GormStore) ListProjects(q ProjectQuery) ([]domain.Project, int, error) {
	tx, order, err := projectListQuery(s.db, q)
	if err != nil {
		return nil, 0, err
	}
	models, total, err := paginate[ProjectModel](tx, q.Page, order)
	if err != nil {
		return nil, 0, err
	}
	return mapSlice(models, projectFromModel), total, nil
}

// DeleteProject removes a project; dependent rows go with it via FK cascade.
func (s *GormStore) DeleteProject(id string) error {
	return deleteRow[ProjectModel](s.db, "id = ?", id)
}

// IncrementProjectViews adds delta without touching updated_at.
func (s *GormStore) IncrementProjectViews(id string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	res := s.db.Model(&ProjectModel{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ProjectStats aggregates counts and view statistics over all projects.
func (s *GormStore) ProjectStats() (ProjectStats, error) {
	var agg struct {
		Total      int
		Featured   int
		TotalViews int64
		AvgViews   float64
		MaxViews   int64
	}
	err := s.db.Model(&ProjectModel{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE is_featured) AS featured, " +
			"COALESCE(SUM(view_count), 0) AS total_views, COALESCE(AVG(view_count), 0) AS avg_views, " +
			"COALESCE(MAX(view_count), 0) AS max_views").
		Scan(&agg).Error
	if err != nil {
		return ProjectStats{}, err
	}
	stats := ProjectStats{
		Total:      agg.Total,
		Featured:   agg.Featured,
		TotalViews: agg.TotalViews,
		AvgViews:   agg.AvgViews,
		MaxViews:   agg.MaxViews,
		ByStatus:   map[domain.ProjectStatus]int{},
		ByCategory: map[domain.ProjectCategory]int{},
	}
	byStatus, err := s.groupCounts(&ProjectModel{}, "status")
	if err != nil {
		return ProjectStats{}, err
	}
	for _, r := range byStatus {
		stats.ByStatus[domain.ProjectStatus(r.Key)] = r.Count
	}
	byCategory, err := s.groupCounts(&ProjectModel{}, "category")
	if err != nil {
		return ProjectStats{}, err
	}
	for _, r := range byCategory {
		stats.ByCategory[domain.ProjectCategory(r.Key)] = r.Count
	}
	return stats, nil
}

// SetProjectTags replaces the project's tag set in one transaction.
func (s *GormStore) SetProjectTags(projectID string, tagIDs []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ProjectModel{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
			return translateError(err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return replaceProjectTags(tx, projectID, tagIDs)
	})
}

func replaceProjectTags(tx *gorm.DB, projectID string, tagIDs []string) error {
	if err := tx.Where("project_id = ?", projectID).Delete(&ProjectTagModel{}).Error; err != nil {
		return translateError(err)
	}
	ids := dedupe(tagIDs)
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]ProjectTagModel, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, ProjectTagModel{ProjectID: projectID, TagID: id, CreatedAt: now})
	}
	return translateError(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error)
}

func (s *GormStore) ListProjectTags(projectID string) ([]domain.Tag, error) {
	var models []TagModel
	err := s.db.Model(&TagModel{}).
		Joins("JOIN project_tags pt ON pt.tag_id = tags.id").
		Where("pt.project_id = ?", projectID).
		Order("tags.name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return mapSlice(models, tagFromModel), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreateAsset inserts an asset for an existing project.
func (s *GormStore) CreateAsset(a domain.ProjectAsset) error {
	model := assetToModel(a)
	return translateError(s.db.Create(&model).Error)
}

func (s *GormStore) UpdateAssetDetails(a domain.ProjectAsset) error {
	return updateColumns[ProjectAssetModel](s.db, a.ID, map[string]any{
		"title":       a.Title,
		"description": a.Description,
		"sort_order":  a.SortOrder,
		"is_primary":  a.IsPrimary,
		"updated_at":  a.UpdatedAt,
	})
}

func (s *GormStore) UpdateAssetProcessing(id string, p AssetProcessing) error {
	cols := map[string]any{
		"processing_status": string(p.Status),
		"is_processed":      p.IsProcessed,
		"processing_error":  p.Error,
		"updated_at":        p.UpdatedAt,
	}
	if p.Result != nil {
		cols["width"] = p.Result.Width
		cols["height"] = p.Result.Height
		cols["page_count"] = p.Result.PageCount
		cols["metadata"] = datatypes.JSON(p.Result.Metadata)
	}
	return updateColumns[ProjectAssetModel](s.db, id, cols)
}

func (s *GormStore) ClearOtherPrimaryAssets(projectID, keepID string) error {
	err := s.db.Model(&ProjectAssetModel{}).
		Where("project_id = ? AND id <> ? AND is_primary", projectID, keepID).
		Updates(map[string]any{"is_primary": false, "updated_at": time.Now().UTC()}).Error
	return translateError(err)
}

func (s *GormStore) GetAsset(id string) (domain.ProjectAsset, bool, error) {
	model, ok, err := findOne[ProjectAssetModel](s.db, "id = ?", id)
	if err != nil || !ok {
		return domain.ProjectAsset{}, ok, err
	}
	return assetFromModel(model), true, nil
}

// ListAssetsByProject returns assets in display order.
func (s *GormStore) ListAssetsByProject(projectID string) ([]domain.ProjectAsset, error) {
	var models []ProjectAssetModel
	if err := s.db.Where("project_id = ?", projectID).
		Order("sort_order ASC, created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, assetFromModel), nil
}

func (s *GormStore) DeleteAsset(id string) error {
	return deleteRow[ProjectAssetModel](s.db, "id = ?", id)
}

func (s *GormStore) CountAssetsByType(projectID string) (map[domain.AssetType]int, error) {
	var conds []any
	if projectID != "" {
		conds = []any{"project_id = ?", projectID}
	}
	rows, err := s.groupCounts(&ProjectAssetModel{}, "type", conds...)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.AssetType]int, len(rows))
	for _, r := range rows {
		out[domain.AssetType(r.Key)] = r.Count
	}
	return out, nil
}

func (s *GormStore) CreateTag(t domain.Tag) error {
	model := tagToModel(t)
	return translateError(s.db.Create(&model).Error)
}

func (s *GormStore) GetTag(id string) (domain.Tag, bool, error) {
	model, ok, err := findOne[TagModel](s.db, "id = ?", id)
	if err != nil || !ok {
		return domain.Tag{}, ok, err
	}
	return tagFromModel(model), true, nil
}

func (s *GormStore) GetTagBySlug(slug string) (domain.Tag, bool, error) {
	model, ok, err := findOne[TagModel](s.db, "slug = ?", slug)
	if err != nil || !ok {
		return domain.Tag{}, ok, err
	}
	return tagFromModel(model), true, nil
}

func (s *GormStore) ListTags() ([]domain.Tag, error) {
	var models []TagModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, tagFromModel), nil
}

// DeleteTag removes a tag and its project links.
func (s *GormStore) DeleteTag(id string) error {
	return deleteRow[TagModel](s.db, "id = ?", id)
}

// TagUsage counts projects per tag, most used first.
func (s *GormStore) TagUsage() ([]TagUsage, error) {
	var rows []struct {
		ID           string
		Name         string
		Slug         string
		Color        string
		CreatedAt    time.Time
		ProjectCount int
	}
	err := s.db.Model(&TagModel{}).
		Select("tags.id, tags.name, tags.slug, tags.color, tags.created_at, COUNT(pt.project_id) AS project_count").
		Joins("LEFT JOIN project_tags pt ON pt.tag_id = tags.id").
		Group("tags.id").
		Order("project_count DESC, tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]TagUsage, 0, len(rows))
	for _, r := range rows {
		out = append(out, TagUsage{
			Tag:          domain.Tag{ID: r.ID, Name: r.Name, Slug: r.Slug, Color: r.Color, CreatedAt: r.CreatedAt},
			ProjectCount: r.ProjectCount,
		})
	}
	return out, nil
}
