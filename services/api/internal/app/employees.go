package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
)

type EmployeeInput struct {
	UserID     string
	EmployeeID string
	Department string
	Position   string
	Salary     decimal.Decimal
	HireDate   *time.Time
	Phone      string
}

func (in EmployeeInput) validate() (EmployeeInput, error) {
	var err error
	if in.EmployeeID, err = requireText("employeeId", in.EmployeeID, 50); err != nil {
		return in, err
	}
	if in.Department, err = requireText("department", in.Department, 100); err != nil {
		return in, err
	}
	if in.Position, err = requireText("position", in.Position, 100); err != nil {
		return in, err
	}
	if in.Phone, err = optionalText("phone", in.Phone, 50); err != nil {
		return in, err
	}
	if in.Salary.IsNegative() {
		return in, invalid("salary", "must not be negative")
	}
	if in.Salary.Exponent() < -2 {
		return in, invalid("salary", "at most two decimal places")
	}
	return in, nil
}

// redactSalary hides pay from roles without salary access.
func redactSalary(actor domain.User, p domain.EmployeeProfile) domain.EmployeeProfile {
	if actor.Role.Can(domain.PermViewSalaries) {
		return p
	}
	return p.WithoutSalary()
}

// CreateEmployeeProfile attaches HR data to a staff account.
func (a *App) CreateEmployeeProfile(actor domain.User, in EmployeeInput) (domain.EmployeeProfile, error) {
	if err := require(actor, domain.PermManageEmployees); err != nil {
		return domain.EmployeeProfile{}, err
	}
	in, err := in.validate()
	if err != nil {
		return domain.EmployeeProfile{}, err
	}
	if err := checkIDs("userId", []string{in.UserID}); err != nil {
		return domain.EmployeeProfile{}, err
	}
	user, ok, err := a.store.GetUserByID(strings.TrimSpace(in.UserID))
	if err != nil {
		return domain.EmployeeProfile{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.EmployeeProfile{}, invalid("userId", "user does not exist")
	}
	if !user.Role.IsStaff() {
		return domain.EmployeeProfile{}, invalid("userId", "only staff accounts have employee profiles")
	}
	now := a.now()
	p := domain.EmployeeProfile{
		ID:         util.NewID(),
		UserID:     user.ID,
		EmployeeID: in.EmployeeID,
		Department: in.Department,
		Position:   in.Position,
		Salary:     in.Salary,
		HireDate:   in.HireDate,
		Phone:      in.Phone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.CreateEmployeeProfile(p); err != nil {
		return domain.EmployeeProfile{}, fmt.Errorf("create employee profile: %w", mapStoreErr(err))
	}
	return redactSalary(actor, p), nil
}

// UpdateEmployeeProfile replaces the HR fields. Salary is only changed by
// roles with salary access.
func (a *App) UpdateEmployeeProfile(actor domain.User, id string, in EmployeeInput) (domain.EmployeeProfile, error) {
	if err := require(actor, domain.PermManageEmployees); err != nil {
		return domain.EmployeeProfile{}, err
	}
	in, err := in.validate()
	if err != nil {
		return domain.EmployeeProfile{}, err
	}
	p, ok, err := a.store.GetEmployeeProfile(id)
	if err != nil {
		return domain.EmployeeProfile{}, fmt.Errorf("fetch employee profile: %w", err)
	}
	if !ok {
		return domain.EmployeeProfile{}, ErrNotFound
	}
	p.EmployeeID = in.EmployeeID
	p.Department = in.Department
	p.Position = in.Position
	p.HireDate = in.HireDate
	p.Phone = in.Phone
	if actor.Role.Can(domain.PermViewSalaries) {
		p.Salary = in.Salary
	}
	p.UpdatedAt = a.now()
	if err := a.store.UpdateEmployeeProfile(p); err != nil {
		return domain.EmployeeProfile{}, fmt.Errorf("update employee profile: %w", mapStoreErr(err))
	}
	return redactSalary(actor, p), nil
}

func (a *App) GetEmployeeProfile(actor domain.User, id string) (domain.EmployeeProfile, error) {
	if !actor.Role.Can(domain.PermManageEmployees) && !actor.Role.Can(domain.PermViewSalaries) {
		return domain.EmployeeProfile{}, ErrForbidden
	}
	p, ok, err := a.store.GetEmployeeProfile(id)
	if err != nil {
		return domain.EmployeeProfile{}, fmt.Errorf("fetch employee profile: %w", err)
	}
	if !ok {
		return domain.EmployeeProfile{}, ErrNotFound
	}
	return redactSalary(actor, p), nil
}

func (a *App) ListEmployeeProfiles(actor domain.User, filter store.EmployeeFilter, page store.Page) ([]domain.EmployeeProfile, int, error) {
	if !actor.Role.Can(domain.PermManageEmployees) && !actor.Role.Can(domain.PermViewSalaries) {
		return nil, 0, ErrForbidden
	}
	filter.Department = strings.TrimSpace(filter.Department)
	items, total, err := a.store.ListEmployeeProfiles(filter, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list employee profiles: %w", mapStoreErr(err))
	}
	for i := range items {
		items[i] = redactSalary(actor, items[i])
	}
	return items, total, nil
}

func (a *App) DeleteEmployeeProfile(actor domain.User, id string) error {
	if err := require(actor, domain.PermManageEmployees); err != nil {
		return err
	}
	if err := a.store.DeleteEmployeeProfile(id); err != nil {
		return fmt.Errorf("delete employee profile: %w", mapStoreErr(err))
	}
	return nil
}

// SalaryStats aggregates salaries per department (finance only).
func (a *App) SalaryStats(actor domain.User) ([]store.DepartmentSalaryStats, error) {
	if err := require(actor, domain.PermViewSalaries); err != nil {
		return nil, err
	}
	stats, err := a.store.SalaryStatsByDepartment()
	if err != nil {
		return nil, fmt.Errorf("salary stats: %w", err)
	}
	return stats, nil
}
