package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("unique constraint violated")
	ErrInvalidReference = errors.New("referenced record does not exist")
	ErrRestricted       = errors.New("record is still referenced")
	ErrInvalidQuery     = errors.New("invalid query")
)

// Constraint names shared by the SQL schema and the in-memory store.
const (
	ConstraintUserEmail        = "idx_users_email"
	ConstraintEmployeeUser     = "idx_employee_profiles_user_id"
	ConstraintEmployeeNumber   = "idx_employee_profiles_employee_id"
	ConstraintProjectSlug      = "idx_projects_slug"
	ConstraintTagName          = "idx_tags_name"
	ConstraintTagSlug          = "idx_tags_slug"
	ConstraintProjectTag       = "project_tags_pkey"
	ConstraintLikeProjectUser  = "idx_likes_project_user"
	ConstraintNewsletterEmail  = "idx_newsletters_email"
	ConstraintNewsletterToken  = "idx_newsletters_unsubscribe_token"
	ConstraintSettingKey       = "idx_site_settings_key"
	ConstraintProjectAuthor    = "fk_projects_author"
	ConstraintEmployeeUserFK   = "fk_employee_profiles_user"
	ConstraintAssetProject     = "fk_project_assets_project"
	ConstraintAssetUploader    = "fk_project_assets_uploader"
	ConstraintProjectTagTag    = "fk_project_tags_tag"
	ConstraintProjectTagProj   = "fk_project_tags_project"
	ConstraintCommentProject   = "fk_comments_project"
	ConstraintCommentAuthor    = "fk_comments_author"
	ConstraintCommentParent    = "fk_comments_parent"
	ConstraintLikeProject      = "fk_likes_project"
	ConstraintLikeUser         = "fk_likes_user"
)

// ConstraintError reports which constraint rejected a write. It unwraps to
// ErrConflict, ErrInvalidReference or ErrRestricted.
type ConstraintError struct {
	Kind       error
	Constraint string
}

func (e *ConstraintError) Error() string {
	if e.Constraint == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + " (" + e.Constraint + ")"
}

func (e *ConstraintError) Unwrap() error { return e.Kind }

// ConstraintOf returns the violated constraint name, or "".
func ConstraintOf(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

func constraintErr(kind error, constraint string) error {
	return &ConstraintError{Kind: kind, Constraint: constraint}
}

// translateError maps driver errors onto the store's sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return constraintErr(ErrConflict, pgErr.ConstraintName)
		case "23503":
			// Postgres reports restrict violations from the referenced side.
			if strings.HasPrefix(pgErr.Message, "update or delete") {
				return constraintErr(ErrRestricted, pgErr.ConstraintName)
			}
			return constraintErr(ErrInvalidReference, pgErr.ConstraintName)
		case "22P02":
			// malformed literal, e.g. a non-uuid id
			return fmt.Errorf("%w: %s", ErrInvalidQuery, pgErr.Message)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return constraintErr(ErrConflict, "")
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return constraintErr(ErrInvalidReference, "")
	}
	return err
}
