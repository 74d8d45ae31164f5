package store

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"portfoliohub/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID                 string  `gorm:"primaryKey;type:uuid"`
	Email              string  `gorm:"uniqueIndex:idx_users_email;not null"`
	Name               string  `gorm:"not null"`
	PasswordHash       string  `gorm:"not null"`
	Role               string  `gorm:"type:varchar(32);not null;index"`
	AvatarURL          string
	Bio                string  `gorm:"type:text"`
	IsActive           bool    `gorm:"not null"`
	EmailVerified      bool    `gorm:"not null"`
	EmailVerifyToken   *string `gorm:"index"`
	EmailVerifyExpires *time.Time
	RefreshToken       *string
	LastLoginAt        *time.Time
	LastActiveAt       *time.Time
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type EmployeeProfileModel struct {
	ID         string          `gorm:"primaryKey;type:uuid"`
	UserID     string          `gorm:"type:uuid;uniqueIndex:idx_employee_profiles_user_id;not null"`
	EmployeeID string          `gorm:"uniqueIndex:idx_employee_profiles_employee_id;not null"`
	Department string          `gorm:"not null;index"`
	Position   string          `gorm:"not null"`
	Salary     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	HireDate   *time.Time
	Phone      string
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (EmployeeProfileModel) TableName() string { return "employee_profiles" }

type ProjectModel struct {
	ID              string `gorm:"primaryKey;type:uuid"`
	Title           string `gorm:"not null"`
	Slug            string `gorm:"uniqueIndex:idx_projects_slug;not null"`
	Summary         string `gorm:"type:text"`
	Content         string `gorm:"type:text"`
	Category        string `gorm:"type:varchar(32);not null;index"`
	Status          string `gorm:"type:varchar(32);not null;index"`
	CoverImageURL   string
	Location        string
	ClientName      string
	Year            int
	MetaTitle       string
	MetaDescription string
	Keywords        pq.StringArray `gorm:"type:text[]"`
	ViewCount       int64          `gorm:"not null"`
	IsFeatured      bool           `gorm:"not null;index"`
	FeaturedOrder   int            `gorm:"not null"`
	AuthorID        string         `gorm:"type:uuid;not null;index"`
	PublishedAt     *time.Time     `gorm:"index"`
	CreatedAt       time.Time      `gorm:"not null;index"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

func (ProjectModel) TableName() string { return "projects" }

type ProjectAssetModel struct {
	ID               string  `gorm:"primaryKey;type:uuid"`
	ProjectID        string  `gorm:"type:uuid;not null;index"`
	UploaderID       *string `gorm:"type:uuid;index"`
	Type             string  `gorm:"type:varchar(32);not null;index"`
	Title            string
	Description      string `gorm:"type:text"`
	FileName         string `gorm:"not null"`
	StorageKey       string `gorm:"not null"`
	ThumbnailKey     string
	MimeType         string `gorm:"not null"`
	FileSize         int64  `gorm:"not null"`
	SortOrder        int    `gorm:"not null"`
	IsPrimary        bool   `gorm:"not null"`
	Width            *int
	Height           *int
	PolygonCount     *int
	DurationSeconds  *float64
	PageCount        *int
	ProcessingStatus string `gorm:"type:varchar(32);not null;index"`
	IsProcessed      bool   `gorm:"not null"`
	ProcessingError  string
	Metadata         datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
}

func (ProjectAssetModel) TableName() string { return "project_assets" }

type TagModel struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	Name      string    `gorm:"uniqueIndex:idx_tags_name;not null"`
	Slug      string    `gorm:"uniqueIndex:idx_tags_slug;not null"`
	Color     string
	CreatedAt time.Time `gorm:"not null"`
}

func (TagModel) TableName() string { return "tags" }

type ProjectTagModel struct {
	ProjectID string    `gorm:"primaryKey;type:uuid"`
	TagID     string    `gorm:"primaryKey;type:uuid;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ProjectTagModel) TableName() string { return "project_tags" }

type CommentModel struct {
	ID         string  `gorm:"primaryKey;type:uuid"`
	ProjectID  string  `gorm:"type:uuid;not null;index"`
	AuthorID   string  `gorm:"type:uuid;not null;index"`
	ParentID   *string `gorm:"type:uuid;index"`
	Content    string  `gorm:"type:text;not null"`
	IsApproved bool    `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (CommentModel) TableName() string { return "comments" }

type LikeModel struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	ProjectID string    `gorm:"type:uuid;not null;uniqueIndex:idx_likes_project_user,priority:1"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_likes_project_user,priority:2;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (LikeModel) TableName() string { return "likes" }

type ContactInquiryModel struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	Name        string `gorm:"not null"`
	Email       string `gorm:"not null;index"`
	Phone       string
	Company     string
	Subject     string `gorm:"not null"`
	Message     string `gorm:"type:text;not null"`
	ProjectType string
	Budget      string
	Status      string `gorm:"type:varchar(32);not null;index"`
	IPAddress   string
	Notes       string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ContactInquiryModel) TableName() string { return "contact_inquiries" }

type NewsletterModel struct {
	ID               string `gorm:"primaryKey;type:uuid"`
	Email            string `gorm:"uniqueIndex:idx_newsletters_email;not null"`
	Name             string
	IsActive         bool   `gorm:"not null;index"`
	UnsubscribeToken string `gorm:"uniqueIndex:idx_newsletters_unsubscribe_token;not null"`
	Source           string
	SubscribedAt     time.Time `gorm:"not null"`
	UnsubscribedAt   *time.Time
}

func (NewsletterModel) TableName() string { return "newsletters" }

type SiteSettingModel struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	Key         string `gorm:"uniqueIndex:idx_site_settings_key;not null"`
	Value       string `gorm:"type:text;not null"`
	Type        string `gorm:"type:varchar(16);not null"`
	Description string
	IsPublic    bool      `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (SiteSettingModel) TableName() string { return "site_settings" }

func allModels() []any {
	return []any{
		&UserModel{}, &EmployeeProfileModel{}, &ProjectModel{}, &ProjectAssetModel{},
		&TagModel{}, &ProjectTagModel{}, &CommentModel{}, &LikeModel{},
		&ContactInquiryModel{}, &NewsletterModel{}, &SiteSettingModel{},
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		PasswordHash:       u.PasswordHash,
		Role:               string(u.Role),
		AvatarURL:          u.AvatarURL,
		Bio:                u.Bio,
		IsActive:           u.IsActive,
		EmailVerified:      u.EmailVerified,
		EmailVerifyToken:   optString(u.EmailVerifyToken),
		EmailVerifyExpires: u.EmailVerifyExpires,
		RefreshToken:       optString(u.RefreshToken),
		LastLoginAt:        u.LastLoginAt,
		LastActiveAt:       u.LastActiveAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:                 m.ID,
		Email:              m.Email,
		Name:               m.Name,
		PasswordHash:       m.PasswordHash,
		Role:               domain.UserRole(m.Role),
		AvatarURL:          m.AvatarURL,
		Bio:                m.Bio,
		IsActive:           m.IsActive,
		EmailVerified:      m.EmailVerified,
		EmailVerifyToken:   derefString(m.EmailVerifyToken),
		EmailVerifyExpires: m.EmailVerifyExpires,
		RefreshToken:       derefString(m.RefreshToken),
		LastLoginAt:        m.LastLoginAt,
		LastActiveAt:       m.LastActiveAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func employeeToModel(p domain.EmployeeProfile) EmployeeProfileModel {
	return EmployeeProfileModel{
		ID:         p.ID,
		UserID:     p.UserID,
		EmployeeID: p.EmployeeID,
		Department: p.Department,
		Position:   p.Position,
		Salary:     p.Salary,
		HireDate:   p.HireDate,
		Phone:      p.Phone,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func employeeFromModel(m EmployeeProfileModel) domain.EmployeeProfile {
	return domain.EmployeeProfile{
		ID:         m.ID,
		UserID:     m.UserID,
		EmployeeID: m.EmployeeID,
		Department: m.Department,
		Position:   m.Position,
		Salary:     m.Salary,
		HireDate:   m.HireDate,
		Phone:      m.Phone,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:              p.ID,
		Title:           p.Title,
		Slug:            p.Slug,
		Summary:         p.Summary,
		Content:         p.Content,
		Category:        string(p.Category),
		Status:          string(p.Status),
		CoverImageURL:   p.CoverImageURL,
		Location:        p.Location,
		ClientName:      p.ClientName,
		Year:            p.Year,
		MetaTitle:       p.MetaTitle,
		MetaDescription: p.MetaDescription,
		Keywords:        pq.StringArray(p.Keywords),
		ViewCount:       p.ViewCount,
		IsFeatured:      p.IsFeatured,
		FeaturedOrder:   p.FeaturedOrder,
		AuthorID:        p.AuthorID,
		PublishedAt:     p.PublishedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	keywords := []string(m.Keywords)
	if keywords == nil {
		keywords = []string{}
	}
	return domain.Project{
		ID:              m.ID,
		Title:           m.Title,
		Slug:            m.Slug,
		Summary:         m.Summary,
		Content:         m.Content,
		Category:        domain.ProjectCategory(m.Category),
		Status:          domain.ProjectStatus(m.Status),
		CoverImageURL:   m.CoverImageURL,
		Location:        m.Location,
		ClientName:      m.ClientName,
		Year:            m.Year,
		MetaTitle:       m.MetaTitle,
		MetaDescription: m.MetaDescription,
		Keywords:        keywords,
		ViewCount:       m.ViewCount,
		IsFeatured:      m.IsFeatured,
		FeaturedOrder:   m.FeaturedOrder,
		AuthorID:        m.AuthorID,
		PublishedAt:     m.PublishedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func assetToModel(a domain.ProjectAsset) ProjectAssetModel {
	var meta datatypes.JSON
	if len(a.Metadata) > 0 {
		meta = datatypes.JSON(a.Metadata)
	}
	return ProjectAssetModel{
		ID:               a.ID,
		ProjectID:        a.ProjectID,
		UploaderID:       optString(a.UploaderID),
		Type:             string(a.Type),
		Title:            a.Title,
		Description:      a.Description,
		FileName:         a.FileName,
		StorageKey:       a.StorageKey,
		ThumbnailKey:     a.ThumbnailKey,
		MimeType:         a.MimeType,
		FileSize:         a.FileSize,
		SortOrder:        a.SortOrder,
		IsPrimary:        a.IsPrimary,
		Width:            a.Width,
		Height:           a.Height,
		PolygonCount:     a.PolygonCount,
		DurationSeconds:  a.DurationSeconds,
		PageCount:        a.PageCount,
		ProcessingStatus: string(a.ProcessingStatus),
		IsProcessed:      a.IsProcessed,
		ProcessingError:  a.ProcessingError,
		Metadata:         meta,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func assetFromModel(m ProjectAssetModel) domain.ProjectAsset {
	var meta json.RawMessage
	if len(m.Metadata) > 0 {
		meta = json.RawMessage(m.Metadata)
	}
	return domain.ProjectAsset{
		ID:               m.ID,
		ProjectID:        m.ProjectID,
		UploaderID:       derefString(m.UploaderID),
		Type:             domain.AssetType(m.Type),
		Title:            m.Title,
		Description:      m.Description,
		FileName:         m.FileName,
		StorageKey:       m.StorageKey,
		ThumbnailKey:     m.ThumbnailKey,
		MimeType:         m.MimeType,
		FileSize:         m.FileSize,
		SortOrder:        m.SortOrder,
		IsPrimary:        m.IsPrimary,
		Width:            m.Width,
		Height:           m.Height,
		PolygonCount:     m.PolygonCount,
		DurationSeconds:  m.DurationSeconds,
		PageCount:        m.PageCount,
		ProcessingStatus: domain.ProcessingStatus(m.ProcessingStatus),
		IsProcessed:      m.IsProcessed,
		ProcessingError:  m.ProcessingError,
		Metadata:         meta,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func tagToModel(t domain.Tag) TagModel {
	return TagModel{ID: t.ID, Name: t.Name, Slug: t.Slug, Color: t.Color, CreatedAt: t.CreatedAt}
}

func tagFromModel(m TagModel) domain.Tag {
	return domain.Tag{ID: m.ID, Name: m.Name, Slug: m.Slug, Color: m.Color, CreatedAt: m.CreatedAt}
}

func commentToModel(c domain.Comment) CommentModel {
	return CommentModel{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		AuthorID:   c.AuthorID,
		ParentID:   optString(c.ParentID),
		Content:    c.Content,
		IsApproved: c.IsApproved,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func commentFromModel(m CommentModel) domain.Comment {
	return domain.Comment{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		AuthorID:   m.AuthorID,
		ParentID:   derefString(m.ParentID),
		Content:    m.Content,
		IsApproved: m.IsApproved,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func inquiryToModel(i domain.ContactInquiry) ContactInquiryModel {
	return ContactInquiryModel{
		ID:          i.ID,
		Name:        i.Name,
		Email:       i.Email,
		Phone:       i.Phone,
		Company:     i.Company,
		Subject:     i.Subject,
		Message:     i.Message,
		ProjectType: i.ProjectType,
		Budget:      i.Budget,
		Status:      string(i.Status),
		IPAddress:   i.IPAddress,
		Notes:       i.Notes,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func inquiryFromModel(m ContactInquiryModel) domain.ContactInquiry {
	return domain.ContactInquiry{
		ID:          m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Phone:       m.Phone,
		Company:     m.Company,
		Subject:     m.Subject,
		Message:     m.Message,
		ProjectType: m.ProjectType,
		Budget:      m.Budget,
		Status:      domain.InquiryStatus(m.Status),
		IPAddress:   m.IPAddress,
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func newsletterToModel(n domain.Newsletter) NewsletterModel {
	return NewsletterModel{
		ID:               n.ID,
		Email:            n.Email,
		Name:             n.Name,
		IsActive:         n.IsActive,
		UnsubscribeToken: n.UnsubscribeToken,
		Source:           n.Source,
		SubscribedAt:     n.SubscribedAt,
		UnsubscribedAt:   n.UnsubscribedAt,
	}
}

func newsletterFromModel(m NewsletterModel) domain.Newsletter {
	return domain.Newsletter{
		ID:               m.ID,
		Email:            m.Email,
		Name:             m.Name,
		IsActive:         m.IsActive,
		UnsubscribeToken: m.UnsubscribeToken,
		Source:           m.Source,
		SubscribedAt:     m.SubscribedAt,
		UnsubscribedAt:   m.UnsubscribedAt,
	}
}

func settingToModel(s domain.SiteSetting) SiteSettingModel {
	return SiteSettingModel{
		ID:          s.ID,
		Key:         s.Key,
		Value:       s.Value,
		Type:        string(s.Type),
		Description: s.Description,
		IsPublic:    s.IsPublic,
		UpdatedAt:   s.UpdatedAt,
	}
}

func settingFromModel(m SiteSettingModel) domain.SiteSetting {
	return domain.SiteSetting{
		ID:          m.ID,
		Key:         m.Key,
		Value:       m.Value,
		Type:        domain.SettingType(m.Type),
		Description: m.Description,
		IsPublic:    m.IsPublic,
		UpdatedAt:   m.UpdatedAt,
	}
}
