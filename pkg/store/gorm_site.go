package store

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"portfoliohub/pkg/domain"
)

func (s *GormStore) CreateInquiry(i domain.ContactInquiry) error {
	model := inquiryToModel(i)
	return translateError(s.db.Create(&model).Error)
}

func (s *GormStore) GetInquiry(id string) (domain.ContactInquiry, bool, error) {
	model, ok, err := findOne[ContactInquiryModel](s.db, "id = ?", id)
	if err != nil || !ok {
		return domain.ContactInquiry{}, ok, err
	}
	return inquiryFromModel(model), true, nil
}

// ListInquiries returns inquiries newest first.
func (s *GormStore) ListInquiries(filter InquiryFilter, page Page) ([]domain.ContactInquiry, int, error) {
	tx := s.db.Model(&ContactInquiryModel{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if strings.TrimSpace(filter.Search) != "" {
		pattern := likePattern(filter.Search)
		tx = tx.Where("(name ILIKE ? OR email ILIKE ? OR subject ILIKE ? OR company ILIKE ?)",
			pattern, pattern, pattern, pattern)
	}
	models, total, err := paginate[ContactInquiryModel](tx.Session(&gorm.Session{}), page, "created_at DESC, id ASC")
	if err != nil {
		return nil, 0, err
	}
	return mapSlice(models, inquiryFromModel), total, nil
}

func (s *GormStore) UpdateInquiry(i domain.ContactInquiry) error {
	model := inquiryToModel(i)
	return updateRow(s.db, &model)
}

func (s *GormStore) DeleteInquiry(id string) error {
	return deleteRow[ContactInquiryModel](s.db, "id = ?", id)
}

func (s *GormStore) CountInquiriesByStatus() (map[domain.InquiryStatus]int, error) {
	rows, err := s.groupCounts(&ContactInquiryModel{}, "status")
	if err != nil {
		return nil, err
	}
	out := make(map[domain.InquiryStatus]int, len(rows))
	for _, r := range rows {
		out[domain.InquiryStatus(r.Key)] = r.Count
	}
	return out, nil
}

// SaveSubscription upserts by email. The id and unsubscribe token of an
// existing row are kept.
func (s *GormStore) SaveSubscription(n domain.Newsletter) error {
	model := newsletterToModel(n)
	return translateError(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "is_active", "source", "subscribed_at", "unsubscribed_at"}),
	}).Create(&model).Error)
}

func (s *GormStore) GetSubscriptionByEmail(email string) (domain.Newsletter, bool, error) {
	model, ok, err := findOne[NewsletterModel](s.db, "email = ?", email)
	if err != nil || !ok {
		return domain.Newsletter{}, ok, err
	}
	return newsletterFromModel(model), true, nil
}

func (s *GormStore) GetSubscriptionByToken(token string) (domain.Newsletter, bool, error) {
	if token == "" {
		return domain.Newsletter{}, false, nil
	}
	model, ok, err := findOne[NewsletterModel](s.db, "unsubscribe_token = ?", token)
	if err != nil || !ok {
		return domain.Newsletter{}, ok, err
	}
	return newsletterFromModel(model), true, nil
}

func (s *GormStore) ListSubscriptions(filter SubscriptionFilter, page Page) ([]domain.Newsletter, int, error) {
	tx := s.db.Model(&NewsletterModel{})
	if filter.ActiveOnly {
		tx = tx.Where("is_active")
	}
	models, total, err := paginate[NewsletterModel](tx.Session(&gorm.Session{}), page, "subscribed_at DESC, id ASC")
	if err != nil {
		return nil, 0, err
	}
	return mapSlice(models, newsletterFromModel), total, nil
}

func (s *GormStore) CountActiveSubscriptions() (int, error) {
	var count int64
	if err := s.db.Model(&NewsletterModel{}).Where("is_active").Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// UpsertSetting inserts or replaces the setting stored under Key.
func (s *GormStore) UpsertSetting(setting domain.SiteSetting) error {
	model := settingToModel(setting)
	return translateError(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "type", "description", "is_public", "updated_at"}),
	}).Create(&model).Error)
}

func (s *GormStore) GetSetting(key string) (domain.SiteSetting, bool, error) {
	model, ok, err := findOne[SiteSettingModel](s.db, "key = ?", key)
	if err != nil || !ok {
		return domain.SiteSetting{}, ok, err
	}
	return settingFromModel(model), true, nil
}

func (s *GormStore) ListSettings(publicOnly bool) ([]domain.SiteSetting, error) {
	tx := s.db.Order("key ASC")
	if publicOnly {
		tx = tx.Where("is_public")
	}
	var models []SiteSettingModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, settingFromModel), nil
}

func (s *GormStore) DeleteSetting(key string) error {
	return deleteRow[SiteSettingModel](s.db, "key = ?", key)
}
