package domain

import (
	"slices"
	"strings"
)

type UserRole string

const (
	RoleSuperAdmin    UserRole = "SUPER_ADMIN"
	RoleAdmin         UserRole = "ADMIN"
	RoleFinance       UserRole = "FINANCE"
	RoleHigherManager UserRole = "HIGHER_MANAGER"
	RoleCrafter       UserRole = "CRAFTER"
	RoleEmployee      UserRole = "EMPLOYEE"
	RoleUser          UserRole = "USER"
)

var userRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleFinance, RoleHigherManager, RoleCrafter, RoleEmployee, RoleUser}

// UserRoles lists every role, highest privilege first.
func UserRoles() []UserRole {
	return append([]UserRole(nil), userRoles...)
}

func (r UserRole) Valid() bool {
	return slices.Contains(userRoles, r)
}

func ParseUserRole(raw string) (UserRole, bool) {
	return parseEnum(raw, userRoles)
}

type ProjectCategory string

const (
	CategoryArchitecture   ProjectCategory = "ARCHITECTURE"
	CategoryInteriorDesign ProjectCategory = "INTERIOR_DESIGN"
	CategoryLandscape      ProjectCategory = "LANDSCAPE"
	CategoryUrbanPlanning  ProjectCategory = "URBAN_PLANNING"
	CategoryRenovation     ProjectCategory = "RENOVATION"
	CategoryVisualization  ProjectCategory = "VISUALIZATION"
	CategoryOther          ProjectCategory = "OTHER"
)

var projectCategories = []ProjectCategory{
	CategoryArchitecture, CategoryInteriorDesign, CategoryLandscape, CategoryUrbanPlanning,
	CategoryRenovation, CategoryVisualization, CategoryOther,
}

func ProjectCategories() []ProjectCategory {
	return append([]ProjectCategory(nil), projectCategories...)
}

func (c ProjectCategory) Valid() bool {
	return slices.Contains(projectCategories, c)
}

func ParseProjectCategory(raw string) (ProjectCategory, bool) {
	return parseEnum(raw, projectCategories)
}

type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "DRAFT"
	ProjectInReview  ProjectStatus = "IN_REVIEW"
	ProjectPublished ProjectStatus = "PUBLISHED"
	ProjectArchived  ProjectStatus = "ARCHIVED"
)

var projectStatuses = []ProjectStatus{ProjectDraft, ProjectInReview, ProjectPublished, ProjectArchived}

func ProjectStatuses() []ProjectStatus {
	return append([]ProjectStatus(nil), projectStatuses...)
}

func (s ProjectStatus) Valid() bool {
	return slices.Contains(projectStatuses, s)
}

func ParseProjectStatus(raw string) (ProjectStatus, bool) {
	return parseEnum(raw, projectStatuses)
}

type AssetType string

const (
	AssetImage    AssetType = "IMAGE"
	AssetDrawing  AssetType = "DRAWING"
	AssetDocument AssetType = "DOCUMENT"
	AssetModel3D  AssetType = "MODEL_3D"
	AssetTour360  AssetType = "TOUR_360"
	AssetVideo    AssetType = "VIDEO"
)

var assetTypes = []AssetType{AssetImage, AssetDrawing, AssetDocument, AssetModel3D, AssetTour360, AssetVideo}

func AssetTypes() []AssetType {
	return append([]AssetType(nil), assetTypes...)
}

func (t AssetType) Valid() bool {
	return slices.Contains(assetTypes, t)
}

func ParseAssetType(raw string) (AssetType, bool) {
	return parseEnum(raw, assetTypes)
}

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "PENDING"
	ProcessingInProgress ProcessingStatus = "PROCESSING"
	ProcessingCompleted  ProcessingStatus = "COMPLETED"
	ProcessingFailed     ProcessingStatus = "FAILED"
)

var processingStatuses = []ProcessingStatus{ProcessingPending, ProcessingInProgress, ProcessingCompleted, ProcessingFailed}

func (s ProcessingStatus) Valid() bool {
	return slices.Contains(processingStatuses, s)
}

func ParseProcessingStatus(raw string) (ProcessingStatus, bool) {
	return parseEnum(raw, processingStatuses)
}

type InquiryStatus string

const (
	InquiryNew        InquiryStatus = "NEW"
	InquiryInProgress InquiryStatus = "IN_PROGRESS"
	InquiryResponded  InquiryStatus = "RESPONDED"
	InquiryClosed     InquiryStatus = "CLOSED"
	InquirySpam       InquiryStatus = "SPAM"
)

var inquiryStatuses = []InquiryStatus{InquiryNew, InquiryInProgress, InquiryResponded, InquiryClosed, InquirySpam}

func InquiryStatuses() []InquiryStatus {
	return append([]InquiryStatus(nil), inquiryStatuses...)
}

func (s InquiryStatus) Valid() bool {
	return slices.Contains(inquiryStatuses, s)
}

func ParseInquiryStatus(raw string) (InquiryStatus, bool) {
	return parseEnum(raw, inquiryStatuses)
}

type SettingType string

const (
	SettingString  SettingType = "STRING"
	SettingNumber  SettingType = "NUMBER"
	SettingBoolean SettingType = "BOOLEAN"
	SettingJSON    SettingType = "JSON"
)

var settingTypes = []SettingType{SettingString, SettingNumber, SettingBoolean, SettingJSON}

func (t SettingType) Valid() bool {
	return slices.Contains(settingTypes, t)
}

func ParseSettingType(raw string) (SettingType, bool) {
	return parseEnum(raw, settingTypes)
}

// parseEnum matches raw case-insensitively; "-" and " " are read as "_".
func parseEnum[T ~string](raw string, values []T) (T, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, v := range values {
		if string(v) == normalized {
			return v, true
		}
	}
	var zero T
	return zero, false
}
