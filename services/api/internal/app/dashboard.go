package app

import (
	"fmt"

	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
)

// Dashboard is the staff overview.
type Dashboard struct {
	Projects          store.ProjectStats           `json:"projects"`
	AssetsByType      map[domain.AssetType]int     `json:"assetsByType"`
	Users             int                          `json:"users"`
	UsersByRole       map[domain.UserRole]int      `json:"usersByRole"`
	InquiriesByStatus map[domain.InquiryStatus]int `json:"inquiriesByStatus"`
	Subscribers       int                          `json:"subscribers"`
	PendingComments   int                          `json:"pendingComments"`
}

func (a *App) Dashboard(actor domain.User) (Dashboard, error) {
	if err := require(actor, domain.PermViewDashboard); err != nil {
		return Dashboard{}, err
	}
	var d Dashboard
	var err error
	if d.Projects, err = a.store.ProjectStats(); err != nil {
		return Dashboard{}, fmt.Errorf("project stats: %w", err)
	}
	if d.AssetsByType, err = a.store.CountAssetsByType(""); err != nil {
		return Dashboard{}, fmt.Errorf("count assets: %w", err)
	}
	if d.UsersByRole, err = a.store.CountUsersByRole(); err != nil {
		return Dashboard{}, fmt.Errorf("count users: %w", err)
	}
	for _, n := range d.UsersByRole {
		d.Users += n
	}
	if d.InquiriesByStatus, err = a.inquiryCounts(); err != nil {
		return Dashboard{}, err
	}
	if d.Subscribers, err = a.store.CountActiveSubscriptions(); err != nil {
		return Dashboard{}, fmt.Errorf("count subscriptions: %w", err)
	}
	pending := false
	if _, d.PendingComments, err = a.store.ListComments(store.CommentFilter{Approved: &pending}, store.Page{Limit: 1}); err != nil {
		return Dashboard{}, fmt.Errorf("count pending comments: %w", err)
	}
	return d, nil
}
