package store

import (
	"time"

	"portfoliohub/pkg/domain"
)

// Store is the persistence surface of the portfolio: one interface per entity.
type Store interface {
	UserStore
	EmployeeStore
	ProjectStore
	AssetStore
	TagStore
	CommentStore
	LikeStore
	InquiryStore
	NewsletterStore
	SettingsStore
}

type UserStore interface {
	CreateUser(domain.User) error
	// CreateUserFirstRole inserts u, giving it firstRole when no user exists
	// yet. Concurrent calls are serialized so only one gets firstRole.
	CreateUserFirstRole(u domain.User, firstRole domain.UserRole) (domain.User, error)
	UpdateUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByVerifyToken(tokenHash string) (domain.User, bool, error)
	HasUserEmail(email string) (bool, error)
	ListUsers(filter UserFilter, page Page) ([]domain.User, int, error)
	CountUsersByRole() (map[domain.UserRole]int, error)
	TouchUserActivity(id string, at time.Time, login bool) error
	// SetUserRefreshToken records the hash of the latest refresh token; "" clears it.
	SetUserRefreshToken(id, tokenHash string) error
	// DeleteUser fails with ErrRestricted while the user still authors projects.
	DeleteUser(id string) error
}

type EmployeeStore interface {
	CreateEmployeeProfile(domain.EmployeeProfile) error
	UpdateEmployeeProfile(domain.EmployeeProfile) error
	GetEmployeeProfile(id string) (domain.EmployeeProfile, bool, error)
	GetEmployeeProfileByUser(userID string) (domain.EmployeeProfile, bool, error)
	ListEmployeeProfiles(filter EmployeeFilter, page Page) ([]domain.EmployeeProfile, int, error)
	DeleteEmployeeProfile(id string) error
	SalaryStatsByDepartment() ([]DepartmentSalaryStats, error)
}

type ProjectStore interface {
	CreateProject(domain.Project) error
	UpdateProject(domain.Project) error
	// CreateProjectWithTags inserts the project and its tag set in one transaction.
	CreateProjectWithTags(p domain.Project, tagIDs []string) error
	// UpdateProjectWithTags updates the project and, when tagIDs is non-nil,
	// replaces its tag set in the same transaction.
	UpdateProjectWithTags(p domain.Project, tagIDs []string) error
	GetProject(id string) (domain.Project, bool, error)
	GetProjectBySlug(slug string) (domain.Project, bool, error)
	HasProjectSlug(slug string) (bool, error)
	ListProjects(query ProjectQuery) ([]domain.Project, int, error)
	// DeleteProject removes the project with its assets, tags, comments and likes.
	DeleteProject(id string) error
	IncrementProjectViews(id string, delta int64) error
	ProjectStats() (ProjectStats, error)
	// SetProjectTags replaces the tag set of a project.
	SetProjectTags(projectID string, tagIDs []string) error
	ListProjectTags(projectID string) ([]domain.Tag, error)
}

type AssetStore interface {
	CreateAsset(domain.ProjectAsset) error
	// UpdateAssetDetails writes the editor-owned columns only: title,
	// description, sort order and the primary flag.
	UpdateAssetDetails(domain.ProjectAsset) error
	// UpdateAssetProcessing writes the worker-owned columns only.
	UpdateAssetProcessing(id string, p AssetProcessing) error
	// ClearOtherPrimaryAssets unsets the primary flag on every asset of the
	// project except keepID.
	ClearOtherPrimaryAssets(projectID, keepID string) error
	GetAsset(id string) (domain.ProjectAsset, bool, error)
	ListAssetsByProject(projectID string) ([]domain.ProjectAsset, error)
	DeleteAsset(id string) error
	// CountAssetsByType groups assets by type; an empty projectID counts all projects.
	CountAssetsByType(projectID string) (map[domain.AssetType]int, error)
}

type TagStore interface {
	CreateTag(domain.Tag) error
	GetTag(id string) (domain.Tag, bool, error)
	GetTagBySlug(slug string) (domain.Tag, bool, error)
	ListTags() ([]domain.Tag, error)
	DeleteTag(id string) error
	TagUsage() ([]TagUsage, error)
}

type CommentStore interface {
	CreateComment(domain.Comment) error
	GetComment(id string) (domain.Comment, bool, error)
	ListComments(filter CommentFilter, page Page) ([]domain.Comment, int, error)
	SetCommentApproval(id string, approved bool) error
	// DeleteComment removes the comment and its replies.
	DeleteComment(id string) error
	CommentCounts(projectIDs []string, approvedOnly bool) (map[string]int, error)
}

type LikeStore interface {
	CreateLike(domain.Like) error
	DeleteLike(projectID, userID string) (bool, error)
	HasLike(projectID, userID string) (bool, error)
	LikeCounts(projectIDs []string) (map[string]int, error)
}

type InquiryStore interface {
	CreateInquiry(domain.ContactInquiry) error
	GetInquiry(id string) (domain.ContactInquiry, bool, error)
	ListInquiries(filter InquiryFilter, page Page) ([]domain.ContactInquiry, int, error)
	UpdateInquiry(domain.ContactInquiry) error
	DeleteInquiry(id string) error
	CountInquiriesByStatus() (map[domain.InquiryStatus]int, error)
}

type NewsletterStore interface {
	// SaveSubscription inserts or updates the subscription keyed by email.
	SaveSubscription(domain.Newsletter) error
	GetSubscriptionByEmail(email string) (domain.Newsletter, bool, error)
	GetSubscriptionByToken(token string) (domain.Newsletter, bool, error)
	ListSubscriptions(filter SubscriptionFilter, page Page) ([]domain.Newsletter, int, error)
	CountActiveSubscriptions() (int, error)
}

type SettingsStore interface {
	UpsertSetting(domain.SiteSetting) error
	GetSetting(key string) (domain.SiteSetting, bool, error)
	ListSettings(publicOnly bool) ([]domain.SiteSetting, error)
	DeleteSetting(key string) error
}

// SessionStore issues and validates access tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user since a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
