package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/auth"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/store"
)

type InquiryInput struct {
	Name        string
	Email       string
	Phone       string
	Company     string
	Subject     string
	Message     string
	ProjectType string
	Budget      string
}

func (in InquiryInput) validate() (InquiryInput, error) {
	var err error
	if in.Name, err = requireText("name", in.Name, 100); err != nil {
		return in, err
	}
	in.Email = normalizeEmail(in.Email)
	if !validEmail(in.Email) {
		return in, invalid("email", "must be a valid email address")
	}
	if in.Subject, err = requireText("subject", in.Subject, 200); err != nil {
		return in, err
	}
	if in.Message, err = requireText("message", util.PlainText(in.Message), 5000); err != nil {
		return in, err
	}
	for _, f := range []struct {
		name string
		val  *string
		max  int
	}{
		{"phone", &in.Phone, 50},
		{"company", &in.Company, 100},
		{"projectType", &in.ProjectType, 100},
		{"budget", &in.Budget, 100},
	} {
		if *f.val, err = optionalText(f.name, *f.val, f.max); err != nil {
			return in, err
		}
	}
	return in, nil
}

// SubmitInquiry stores a contact form submission from a visitor.
func (a *App) SubmitInquiry(ctx context.Context, in InquiryInput, ip string) (domain.ContactInquiry, error) {
	in, err := in.validate()
	if err != nil {
		return domain.ContactInquiry{}, err
	}
	now := a.now()
	inq := domain.ContactInquiry{
		ID:          util.NewID(),
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		Company:     in.Company,
		Subject:     in.Subject,
		Message:     in.Message,
		ProjectType: in.ProjectType,
		Budget:      in.Budget,
		Status:      domain.InquiryNew,
		IPAddress:   ip,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateInquiry(inq); err != nil {
		return domain.ContactInquiry{}, fmt.Errorf("create inquiry: %w", mapStoreErr(err))
	}
	a.emit(ctx, events.InquiryReceived, map[string]any{
		"inquiryId": inq.ID,
		"email":     inq.Email,
		"name":      inq.Name,
		"subject":   inq.Subject,
	})
	return inq, nil
}

func (a *App) ListInquiries(actor domain.User, filter store.InquiryFilter, page store.Page) ([]domain.ContactInquiry, int, error) {
	if err := require(actor, domain.PermManageInquiries); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, invalid("status", "unknown status %q", filter.Status)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	items, total, err := a.store.ListInquiries(filter, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list inquiries: %w", mapStoreErr(err))
	}
	return items, total, nil
}

func (a *App) GetInquiry(actor domain.User, id string) (domain.ContactInquiry, error) {
	if err := require(actor, domain.PermManageInquiries); err != nil {
		return domain.ContactInquiry{}, err
	}
	inq, ok, err := a.store.GetInquiry(id)
	if err != nil {
		return domain.ContactInquiry{}, fmt.Errorf("fetch inquiry: %w", err)
	}
	if !ok {
		return domain.ContactInquiry{}, ErrNotFound
	}
	return inq, nil
}

type InquiryUpdate struct {
	Status *domain.InquiryStatus
	Notes  *string
}

func (a *App) UpdateInquiry(actor domain.User, id string, in InquiryUpdate) (domain.ContactInquiry, error) {
	inq, err := a.GetInquiry(actor, id)
	if err != nil {
		return domain.ContactInquiry{}, err
	}
	if in.Status == nil && in.Notes == nil {
		return domain.ContactInquiry{}, invalid("", "status or notes is required")
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return domain.ContactInquiry{}, invalid("status", "unknown status %q", *in.Status)
		}
		inq.Status = *in.Status
	}
	if in.Notes != nil {
		if inq.Notes, err = optionalText("notes", *in.Notes, 5000); err != nil {
			return domain.ContactInquiry{}, err
		}
	}
	inq.UpdatedAt = a.now()
	if err := a.store.UpdateInquiry(inq); err != nil {
		return domain.ContactInquiry{}, fmt.Errorf("update inquiry: %w", mapStoreErr(err))
	}
	return inq, nil
}

func (a *App) DeleteInquiry(actor domain.User, id string) error {
	if err := require(actor, domain.PermManageInquiries); err != nil {
		return err
	}
	if err := a.store.DeleteInquiry(id); err != nil {
		return fmt.Errorf("delete inquiry: %w", mapStoreErr(err))
	}
	return nil
}

// InquiryCounts groups inquiries by status; every status is present.
func (a *App) InquiryCounts(actor domain.User) (map[domain.InquiryStatus]int, error) {
	if err := require(actor, domain.PermManageInquiries); err != nil {
		return nil, err
	}
	return a.inquiryCounts()
}

func (a *App) inquiryCounts() (map[domain.InquiryStatus]int, error) {
	counts, err := a.store.CountInquiriesByStatus()
	if err != nil {
		return nil, fmt.Errorf("count inquiries: %w", err)
	}
	out := make(map[domain.InquiryStatus]int, len(domain.InquiryStatuses()))
	for _, s := range domain.InquiryStatuses() {
		out[s] = counts[s]
	}
	return out, nil
}

// Subscribe adds an email to the newsletter. An existing row is reactivated
// and keeps its unsubscribe token; subscribing twice while active is a no-op.
// The token is stored as issued since every mailing links to it.
func (a *App) Subscribe(ctx context.Context, email, name, source string) (domain.Newsletter, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.Newsletter{}, invalid("email", "must be a valid email address")
	}
	name, err := optionalText("name", name, 100)
	if err != nil {
		return domain.Newsletter{}, err
	}
	source, err = optionalText("source", source, 50)
	if err != nil {
		return domain.Newsletter{}, err
	}
	sub, found, err := a.store.GetSubscriptionByEmail(email)
	if err != nil {
		return domain.Newsletter{}, fmt.Errorf("fetch subscription: %w", err)
	}
	if found && sub.IsActive {
		return sub, nil
	}
	if !found {
		token, _, err := auth.NewOpaqueToken()
		if err != nil {
			return domain.Newsletter{}, fmt.Errorf("unsubscribe token: %w", err)
		}
		sub = domain.Newsletter{ID: util.NewID(), Email: email, UnsubscribeToken: token}
	}
	if name != "" {
		sub.Name = name
	}
	if source != "" {
		sub.Source = source
	}
	sub.IsActive = true
	sub.SubscribedAt = a.now()
	sub.UnsubscribedAt = nil
	if err := a.store.SaveSubscription(sub); err != nil {
		return domain.Newsletter{}, fmt.Errorf("save subscription: %w", mapStoreErr(err))
	}
	a.emit(ctx, events.NewsletterSubscribed, map[string]any{
		"email":            sub.Email,
		"name":             sub.Name,
		"unsubscribeToken": sub.UnsubscribeToken,
		"unsubscribeUrl":   a.link("/newsletter/unsubscribe", sub.UnsubscribeToken),
	})
	return sub, nil
}

// Unsubscribe deactivates the subscription owning the token.
func (a *App) Unsubscribe(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid("token", "is required")
	}
	sub, ok, err := a.store.GetSubscriptionByToken(token)
	if err != nil {
		return fmt.Errorf("fetch subscription: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if !sub.IsActive {
		return nil
	}
	now := a.now()
	sub.IsActive = false
	sub.UnsubscribedAt = &now
	if err := a.store.SaveSubscription(sub); err != nil {
		return fmt.Errorf("save subscription: %w", mapStoreErr(err))
	}
	a.emit(ctx, events.NewsletterUnsubscribed, map[string]any{"email": sub.Email})
	return nil
}

func (a *App) ListSubscribers(actor domain.User, activeOnly bool, page store.Page) ([]domain.Newsletter, int, error) {
	if err := require(actor, domain.PermManageInquiries); err != nil {
		return nil, 0, err
	}
	items, total, err := a.store.ListSubscriptions(store.SubscriptionFilter{ActiveOnly: activeOnly}, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}
	return items, total, nil
}

func (a *App) SubscriberCount(actor domain.User) (int, error) {
	if err := require(actor, domain.PermManageInquiries); err != nil {
		return 0, err
	}
	n, err := a.store.CountActiveSubscriptions()
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

var settingKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,99}$`)

// SettingValue decodes a stored setting into its typed value.
func SettingValue(s domain.SiteSetting) (any, error) {
	switch s.Type {
	case domain.SettingNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("number %q is not finite", s.Value)
		}
		return f, nil
	case domain.SettingBoolean:
		return strconv.ParseBool(strings.TrimSpace(s.Value))
	case domain.SettingJSON:
		var v any
		if err := json.Unmarshal([]byte(s.Value), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return s.Value, nil
	}
}

// PublicSettings returns public settings as key to typed value. Values that
// no longer decode are skipped and logged.
func (a *App) PublicSettings(ctx context.Context) (map[string]any, error) {
	settings, err := a.store.ListSettings(true)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make(map[string]any, len(settings))
	for _, s := range settings {
		v, err := SettingValue(s)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("setting_decode_failed", "key", s.Key, "err", err)
			continue
		}
		out[s.Key] = v
	}
	return out, nil
}

func (a *App) ListSettings(actor domain.User) ([]domain.SiteSetting, error) {
	if err := require(actor, domain.PermManageSettings); err != nil {
		return nil, err
	}
	settings, err := a.store.ListSettings(false)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

type SettingInput struct {
	Key         string
	Value       string
	Type        domain.SettingType
	Description string
	IsPublic    bool
}

// UpsertSetting validates the value against its type and stores it.
func (a *App) UpsertSetting(actor domain.User, in SettingInput) (domain.SiteSetting, error) {
	if err := require(actor, domain.PermManageSettings); err != nil {
		return domain.SiteSetting{}, err
	}
	return a.SaveSetting(in)
}

// SaveSetting stores a setting without a permission check; operator tooling uses it.
func (a *App) SaveSetting(in SettingInput) (domain.SiteSetting, error) {
	key := strings.TrimSpace(in.Key)
	if !settingKeyPattern.MatchString(key) {
		return domain.SiteSetting{}, invalid("key", "must be lowercase letters, digits, '.', '_' or '-'")
	}
	if in.Type == "" {
		in.Type = domain.SettingString
	}
	if !in.Type.Valid() {
		return domain.SiteSetting{}, invalid("type", "unknown type %q", in.Type)
	}
	description, err := optionalText("description", in.Description, 500)
	if err != nil {
		return domain.SiteSetting{}, err
	}
	s := domain.SiteSetting{
		Key:         key,
		Value:       in.Value,
		Type:        in.Type,
		Description: description,
		IsPublic:    in.IsPublic,
		UpdatedAt:   a.now(),
	}
	if _, err := SettingValue(s); err != nil {
		return domain.SiteSetting{}, invalid("value", "is not a valid %s", strings.ToLower(string(in.Type)))
	}
	existing, ok, err := a.store.GetSetting(key)
	if err != nil {
		return domain.SiteSetting{}, fmt.Errorf("fetch setting: %w", err)
	}
	if ok {
		s.ID = existing.ID
	} else {
		s.ID = util.NewID()
	}
	if err := a.store.UpsertSetting(s); err != nil {
		return domain.SiteSetting{}, fmt.Errorf("upsert setting: %w", mapStoreErr(err))
	}
	return s, nil
}

// AllSettings lists every setting without a permission check; operator tooling uses it.
func (a *App) AllSettings() ([]domain.SiteSetting, error) {
	settings, err := a.store.ListSettings(false)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

func (a *App) DeleteSetting(actor domain.User, key string) error {
	if err := require(actor, domain.PermManageSettings); err != nil {
		return err
	}
	if err := a.store.DeleteSetting(key); err != nil {
		return fmt.Errorf("delete setting: %w", mapStoreErr(err))
	}
	return nil
}
