package server

import (
	"net/http"
	"strings"

	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
	"portfoliohub/services/api/internal/app"
)

func (s *Server) handlePublicSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.app.PublicSettings(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.contactLimiter, "contact.submit", "too many inquiries") {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		Company     string `json:"company"`
		Subject     string `json:"subject"`
		Message     string `json:"message"`
		ProjectType string `json:"projectType"`
		Budget      string `json:"budget"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	inquiry, err := s.app.SubmitInquiry(r.Context(), app.InquiryInput(req), s.clientIP(r))
	if err != nil {
		s.audit(r, "contact.submit", "fail")
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": inquiry.ID, "status": string(inquiry.Status)})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.newsletterLimiter, "newsletter.subscribe", "too many requests") {
		return
	}
	var req struct {
		Email  string `json:"email"`
		Name   string `json:"name"`
		Source string `json:"source"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := s.app.Subscribe(r.Context(), req.Email, req.Name, req.Source)
	if err != nil {
		s.audit(r, "newsletter.subscribe", "fail")
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": sub.Email, "isActive": sub.IsActive})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Unsubscribe(r.Context(), req.Token); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListInquiries(w http.ResponseWriter, r *http.Request, user domain.User) {
	page, err := parsePage(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	filter := store.InquiryFilter{Search: strings.TrimSpace(r.URL.Query().Get("q"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := domain.ParseInquiryStatus(raw)
		if !ok {
			writeAppError(w, r, &app.ValidationError{Field: "status", Message: "unknown status"})
			return
		}
		filter.Status = status
	}
	items, total, err := s.app.ListInquiries(user, filter, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, page))
}

func (s *Server) handleAdminInquiryCounts(w http.ResponseWriter, r *http.Request, user domain.User) {
	counts, err := s.app.InquiryCounts(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleAdminGetInquiry(w http.ResponseWriter, r *http.Request, user domain.User) {
	inquiry, err := s.app.GetInquiry(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inquiry)
}

func (s *Server) handleAdminUpdateInquiry(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Status *domain.InquiryStatus `json:"status"`
		Notes  *string               `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	inquiry, err := s.app.UpdateInquiry(user, r.PathValue("id"), app.InquiryUpdate{Status: req.Status, Notes: req.Notes})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inquiry)
}

func (s *Server) handleAdminDeleteInquiry(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteInquiry(user, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListSubscribers(w http.ResponseWriter, r *http.Request, user domain.User) {
	page, err := parsePage(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	active, err := parseOptionalBool(r, "active")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items, total, err := s.app.ListSubscribers(user, active != nil && *active, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, page))
}

func (s *Server) handleAdminSubscriberCount(w http.ResponseWriter, r *http.Request, user domain.User) {
	count, err := s.app.SubscriberCount(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"active": count})
}

func (s *Server) handleAdminListSettings(w http.ResponseWriter, r *http.Request, user domain.User) {
	settings, err := s.app.ListSettings(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if settings == nil {
		settings = []domain.SiteSetting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": settings})
}

func (s *Server) handleAdminUpsertSetting(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Value       string             `json:"value"`
		Type        domain.SettingType `json:"type"`
		Description string             `json:"description"`
		IsPublic    bool               `json:"isPublic"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	setting, err := s.app.UpsertSetting(user, app.SettingInput{
		Key: r.PathValue("key"), Value: req.Value, Type: req.Type, Description: req.Description, IsPublic: req.IsPublic,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "setting.update", "success", "user_id", user.ID, "key", setting.Key)
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handleAdminDeleteSetting(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteSetting(user, r.PathValue("key")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
