package store

import (
	"gorm.io/gorm"
	"portfoliohub/pkg/domain"
)

// CreateComment inserts a comment. A reply's parent must belong to the same
// project.
func (s *GormStore) CreateComment(c domain.Comment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if c.ParentID != "" {
			parent, ok, err := findOne[CommentModel](tx, "id = ?", c.ParentID)
			if err != nil {
				return err
			}
			if !ok || parent.ProjectID != c.ProjectID {
				return constraintErr(ErrInvalidReference, ConstraintCommentParent)
			}
		}
		model := commentToModel(c)
		return translateError(tx.Create(&model).Error)
	})
}

func (s *GormStore) GetComment(id string) (domain.Comment, bool, error) {
	model, ok, err := findOne[CommentModel](s.db, "id = ?", id)
	if err != nil || !ok {
		return domain.Comment{}, ok, err
	}
	return commentFromModel(model), true, nil
}

// ListComments returns comments oldest first so threads read top-down.
func (s *GormStore) ListComments(filter CommentFilter, page Page) ([]domain.Comment, int, error) {
	tx := s.db.Model(&CommentModel{})
	if filter.ProjectID != "" {
		tx = tx.Where("project_id = ?", filter.ProjectID)
	}
	if filter.AuthorID != "" {
		tx = tx.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Approved != nil {
		tx = tx.Where("is_approved = ?", *filter.Approved)
	}
	if filter.TopLevelOnly {
		tx = tx.Where("parent_id IS NULL")
	}
	models, total, err := paginate[CommentModel](tx.Session(&gorm.Session{}), page, "created_at ASC, id ASC")
	if err != nil {
		return nil, 0, err
	}
	return mapSlice(models, commentFromModel), total, nil
}

func (s *GormStore) SetCommentApproval(id string, approved bool) error {
	res := s.db.Model(&CommentModel{}).Where("id = ?", id).Updates(map[string]any{
		"is_approved": approved,
		"updated_at":  gorm.Expr("now()"),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteComment removes a comment; replies cascade through the parent FK.
func (s *GormStore) DeleteComment(id string) error {
	return deleteRow[CommentModel](s.db, "id = ?", id)
}

// CommentCounts counts comments for each of the given projects.
func (s *GormStore) CommentCounts(projectIDs []string, approvedOnly bool) (map[string]int, error) {
	out := make(map[string]int, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}
	query := "project_id IN ?"
	if approvedOnly {
		query += " AND is_approved"
	}
	rows, err := s.groupCounts(&CommentModel{}, "project_id", query, projectIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

// CreateLike records a like; a second like by the same user yields ErrConflict.
func (s *GormStore) CreateLike(l domain.Like) error {
	model := LikeModel{ID: l.ID, ProjectID: l.ProjectID, UserID: l.UserID, CreatedAt: l.CreatedAt}
	return translateError(s.db.Create(&model).Error)
}

// DeleteLike removes a like and reports whether one existed.
func (s *GormStore) DeleteLike(projectID, userID string) (bool, error) {
	res := s.db.Where("project_id = ? AND user_id = ?", projectID, userID).Delete(&LikeModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) HasLike(projectID, userID string) (bool, error) {
	var count int64
	if err := s.db.Model(&LikeModel{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) LikeCounts(projectIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(projectIDs))
	if len(projectIDs) == 0 {
		return out, nil
	}
	rows, err := s.groupCounts(&LikeModel{}, "project_id", "project_id IN ?", projectIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}
