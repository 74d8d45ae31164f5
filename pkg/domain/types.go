package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	PasswordHash       string     `json:"-"`
	Role               UserRole   `json:"role"`
	AvatarURL          string     `json:"avatarUrl,omitempty"`
	Bio                string     `json:"bio,omitempty"`
	IsActive           bool       `json:"isActive"`
	EmailVerified      bool       `json:"emailVerified"`
	EmailVerifyToken   string     `json:"-"`
	EmailVerifyExpires *time.Time `json:"-"`
	RefreshToken       string     `json:"-"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
	LastActiveAt       *time.Time `json:"lastActiveAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// EmployeeProfile extends a staff User with HR data.
type EmployeeProfile struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	EmployeeID string          `json:"employeeId"`
	Department string          `json:"department"`
	Position   string          `json:"position"`
	Salary     decimal.Decimal `json:"salary"`
	HireDate   *time.Time      `json:"hireDate,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// WithoutSalary returns a copy safe to show to roles without salary access.
func (p EmployeeProfile) WithoutSalary() EmployeeProfile {
	p.Salary = decimal.Zero
	return p
}

type Project struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	Summary         string          `json:"summary,omitempty"`
	Content         string          `json:"content,omitempty"`
	Category        ProjectCategory `json:"category"`
	Status          ProjectStatus   `json:"status"`
	CoverImageURL   string          `json:"coverImageUrl,omitempty"`
	Location        string          `json:"location,omitempty"`
	ClientName      string          `json:"clientName,omitempty"`
	Year            int             `json:"year,omitempty"`
	MetaTitle       string          `json:"metaTitle,omitempty"`
	MetaDescription string          `json:"metaDescription,omitempty"`
	Keywords        []string        `json:"keywords"`
	ViewCount       int64           `json:"viewCount"`
	IsFeatured      bool            `json:"isFeatured"`
	FeaturedOrder   int             `json:"featuredOrder"`
	AuthorID        string          `json:"authorId"`
	PublishedAt     *time.Time      `json:"publishedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ProjectAsset is a media record attached to a project. Only the optional
// fields matching Type are populated.
type ProjectAsset struct {
	ID               string           `json:"id"`
	ProjectID        string           `json:"projectId"`
	UploaderID       string           `json:"uploaderId,omitempty"`
	Type             AssetType        `json:"type"`
	Title            string           `json:"title,omitempty"`
	Description      string           `json:"description,omitempty"`
	FileName         string           `json:"fileName"`
	StorageKey       string           `json:"-"`
	ThumbnailKey     string           `json:"-"`
	MimeType         string           `json:"mimeType"`
	FileSize         int64            `json:"fileSize"`
	SortOrder        int              `json:"sortOrder"`
	IsPrimary        bool             `json:"isPrimary"`
	Width            *int             `json:"width,omitempty"`
	Height           *int             `json:"height,omitempty"`
	PolygonCount     *int             `json:"polygonCount,omitempty"`
	DurationSeconds  *float64         `json:"durationSeconds,omitempty"`
	PageCount        *int             `json:"pageCount,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	IsProcessed      bool             `json:"isProcessed"`
	ProcessingError  string           `json:"processingError,omitempty"`
	Metadata         json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProjectTag joins Project and Tag; (ProjectID, TagID) is the key.
type ProjectTag struct {
	ProjectID string    `json:"projectId"`
	TagID     string    `json:"tagId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	AuthorID   string    `json:"authorId"`
	ParentID   string    `json:"parentId,omitempty"`
	Content    string    `json:"content"`
	IsApproved bool      `json:"isApproved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Like struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type ContactInquiry struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Phone       string        `json:"phone,omitempty"`
	Company     string        `json:"company,omitempty"`
	Subject     string        `json:"subject"`
	Message     string        `json:"message"`
	ProjectType string        `json:"projectType,omitempty"`
	Budget      string        `json:"budget,omitempty"`
	Status      InquiryStatus `json:"status"`
	IPAddress   string        `json:"ipAddress,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type Newsletter struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name,omitempty"`
	IsActive         bool       `json:"isActive"`
	UnsubscribeToken string     `json:"-"`
	Source           string     `json:"source,omitempty"`
	SubscribedAt     time.Time  `json:"subscribedAt"`
	UnsubscribedAt   *time.Time `json:"unsubscribedAt,omitempty"`
}

type SiteSetting struct {
	ID          string      `json:"id"`
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Description string      `json:"description,omitempty"`
	IsPublic    bool        `json:"isPublic"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
