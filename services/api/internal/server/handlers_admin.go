package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
	"portfoliohub/services/api/internal/app"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	dashboard, err := s.app.Dashboard(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request, user domain.User) {
	page, err := parsePage(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := store.UserFilter{Role: domain.UserRole(strings.TrimSpace(q.Get("role"))), Search: q.Get("q")}
	if filter.Active, err = parseOptionalBool(r, "active"); err != nil {
		writeAppError(w, r, err)
		return
	}
	items, total, err := s.app.ListUsers(user, filter, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, page))
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Email    string          `json:"email"`
		Name     string          `json:"name"`
		Password string          `json:"password"`
		Role     domain.UserRole `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := s.app.AdminCreateUser(r.Context(), user, req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		s.audit(r, "admin.user.create", "fail", "user_id", user.ID)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.create", "success", "user_id", user.ID, "target_id", created.ID, "role", created.Role)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Role     *domain.UserRole `json:"role"`
		IsActive *bool            `json:"isActive"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.AdminUpdateUser(r.Context(), user, r.PathValue("id"), app.UserUpdate{Role: req.Role, IsActive: req.IsActive})
	if err != nil {
		s.audit(r, "admin.user.update", "fail", "user_id", user.ID, "target_id", r.PathValue("id"))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.update", "success", "user_id", user.ID, "target_id", updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := r.PathValue("id")
	if err := s.app.DeleteUser(r.Context(), user, id); err != nil {
		s.audit(r, "admin.user.delete", "fail", "user_id", user.ID, "target_id", id)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user.delete", "success", "user_id", user.ID, "target_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type employeeRequest struct {
	UserID     string          `json:"userId"`
	EmployeeID string          `json:"employeeId"`
	Department string          `json:"department"`
	Position   string          `json:"position"`
	Salary     decimal.Decimal `json:"salary"`
	HireDate   string          `json:"hireDate"`
	Phone      string          `json:"phone"`
}

// input accepts hireDate as a calendar date or an RFC 3339 timestamp.
func (req employeeRequest) input() (app.EmployeeInput, error) {
	in := app.EmployeeInput{
		UserID: req.UserID, EmployeeID: req.EmployeeID, Department: req.Department,
		Position: req.Position, Salary: req.Salary, Phone: req.Phone,
	}
	raw := strings.TrimSpace(req.HireDate)
	if raw == "" {
		return in, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			in.HireDate = &t
			return in, nil
		}
	}
	return in, &app.ValidationError{Field: "hireDate", Message: "must be a date (YYYY-MM-DD)"}
}

func (s *Server) handleAdminListEmployees(w http.ResponseWriter, r *http.Request, user domain.User) {
	page, err := parsePage(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	filter := store.EmployeeFilter{Department: r.URL.Query().Get("department")}
	items, total, err := s.app.ListEmployeeProfiles(user, filter, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, page))
}

func (s *Server) handleAdminCreateEmployee(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req employeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	profile, err := s.app.CreateEmployeeProfile(user, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleAdminGetEmployee(w http.ResponseWriter, r *http.Request, user domain.User) {
	profile, err := s.app.GetEmployeeProfile(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAdminUpdateEmployee(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req employeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	profile, err := s.app.UpdateEmployeeProfile(user, r.PathValue("id"), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAdminDeleteEmployee(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteEmployeeProfile(user, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminSalaryStats(w http.ResponseWriter, r *http.Request, user domain.User) {
	stats, err := s.app.SalaryStats(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if stats == nil {
		stats = []store.DepartmentSalaryStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stats})
}
