package app

import (
	"context"
	"fmt"
	"strings"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/store"
)

func require(actor domain.User, perm domain.Permission) error {
	if !actor.Role.Can(perm) {
		return ErrForbidden
	}
	return nil
}

// ListUsers returns a page of users for administrators.
func (a *App) ListUsers(actor domain.User, filter store.UserFilter, page store.Page) ([]domain.User, int, error) {
	if err := require(actor, domain.PermManageUsers); err != nil {
		return nil, 0, err
	}
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, invalid("role", "unknown role %q", filter.Role)
	}
	users, total, err := a.store.ListUsers(filter, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", mapStoreErr(err))
	}
	return users, total, nil
}

type UserUpdate struct {
	Role     *domain.UserRole
	IsActive *bool
}

// AdminUpdateUser changes role or active flag. Nobody changes their own role
// or deactivates themselves, and only SUPER_ADMIN grants or revokes SUPER_ADMIN.
func (a *App) AdminUpdateUser(ctx context.Context, actor domain.User, userID string, in UserUpdate) (domain.User, error) {
	if err := require(actor, domain.PermManageUsers); err != nil {
		return domain.User{}, err
	}
	if in.Role == nil && in.IsActive == nil {
		return domain.User{}, invalid("", "role or isActive is required")
	}
	target, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if target.ID == actor.ID {
		if in.Role != nil && *in.Role != actor.Role {
			return domain.User{}, invalid("role", "cannot change own role")
		}
		if in.IsActive != nil && !*in.IsActive {
			return domain.User{}, invalid("isActive", "cannot deactivate self")
		}
	}
	if target.Role == domain.RoleSuperAdmin && actor.Role != domain.RoleSuperAdmin {
		return domain.User{}, ErrForbidden
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return domain.User{}, invalid("role", "unknown role %q", *in.Role)
		}
		if !actor.Role.CanAssignRole(*in.Role) {
			return domain.User{}, ErrForbidden
		}
		target.Role = *in.Role
	}
	deactivated := false
	if in.IsActive != nil {
		deactivated = target.IsActive && !*in.IsActive
		target.IsActive = *in.IsActive
	}
	target.UpdatedAt = a.now()
	if err := a.store.UpdateUser(target); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", mapStoreErr(err))
	}
	if deactivated {
		if err := a.revokeAllUserTokens(ctx, target.ID, target.UpdatedAt); err != nil {
			return domain.User{}, fmt.Errorf("revoke deactivated user tokens: %w", err)
		}
	}
	util.LoggerFromContext(ctx).Info("user_updated", "actor_id", actor.ID, "user_id", target.ID, "role", target.Role, "active", target.IsActive)
	return target, nil
}

// DeleteUser removes an account with its profile, comments and likes. Users
// that still author projects cannot be deleted (ErrInUse).
func (a *App) DeleteUser(ctx context.Context, actor domain.User, userID string) error {
	if err := require(actor, domain.PermManageUsers); err != nil {
		return err
	}
	if userID == actor.ID {
		return invalid("id", "cannot delete self")
	}
	target, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if target.Role == domain.RoleSuperAdmin && actor.Role != domain.RoleSuperAdmin {
		return ErrForbidden
	}
	if err := a.store.DeleteUser(userID); err != nil {
		return fmt.Errorf("delete user: %w", mapStoreErr(err))
	}
	if err := a.revokeAllUserTokens(ctx, userID, a.now()); err != nil {
		util.LoggerFromContext(ctx).Warn("revoke_deleted_user_tokens_failed", "user_id", userID, "err", err)
	}
	return nil
}

// AdminCreateUser creates a verified account on behalf of an administrator,
// who may only hand out roles they are allowed to assign.
func (a *App) AdminCreateUser(ctx context.Context, actor domain.User, email, name, password string, role domain.UserRole) (domain.User, error) {
	if err := require(actor, domain.PermManageUsers); err != nil {
		return domain.User{}, err
	}
	if role == "" {
		role = domain.RoleUser
	}
	if role.Valid() && !actor.Role.CanAssignRole(role) {
		return domain.User{}, ErrForbidden
	}
	user, err := a.CreateStaffUser(ctx, email, name, password, role)
	if err != nil {
		return domain.User{}, err
	}
	a.emit(ctx, events.UserRegistered, map[string]any{"userId": user.ID, "email": user.Email, "name": user.Name, "createdBy": actor.ID})
	return user, nil
}
