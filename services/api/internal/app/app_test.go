package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/queue"
	"portfoliohub/pkg/storage"
	"portfoliohub/pkg/store"
)

const testPassword = "Str0ng!Passw0rd"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, evt := range p.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type fakeQueue struct {
	mu     sync.Mutex
	assets []string
	err    error
}

func (q *fakeQueue) Enqueue(_ context.Context, assetID string) (queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return queue.Job{}, q.err
	}
	q.assets = append(q.assets, assetID)
	return queue.Job{ID: util.NewID(), AssetID: assetID, Status: queue.StatusQueued}, nil
}

type testEnv struct {
	app     *App
	store   *store.MemoryStore
	events  *recordingPublisher
	jobs    *fakeQueue
	objects *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	keys, err := store.GenerateJWTKeys("test-kid")
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	sessions, err := store.NewJWTSessionStore(keys, 15*time.Minute, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	env := &testEnv{
		store:   store.NewMemoryStore(),
		events:  &recordingPublisher{},
		jobs:    &fakeQueue{},
		objects: storage.NewMemoryStore(),
	}
	env.app, err = New(Config{
		Store:         env.store,
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
		Objects:       env.objects,
		Jobs:          env.jobs,
		Events:        env.events,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return env
}

// seedUser stores an active, verified account with the given role.
func (e *testEnv) seedUser(t *testing.T, role domain.UserRole) domain.User {
	t.Helper()
	id := util.NewID()
	now := time.Now().UTC()
	u := domain.User{
		ID:            id,
		Email:         id[:8] + "@example.com",
		Name:          string(role) + " user",
		Role:          role,
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateUser(u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (e *testEnv) publishedProject(t *testing.T, author domain.User, title string) domain.Project {
	t.Helper()
	p, err := e.app.CreateProject(context.Background(), author, ProjectInput{
		Title:    title,
		Category: domain.CategoryArchitecture,
		Status:   domain.ProjectPublished,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestNewRequiresConnectionsWhenNothingInjected(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without database URL")
	}
	if _, err := New(Config{Store: store.NewMemoryStore()}); err == nil {
		t.Fatalf("expected error without jwt key path")
	}
}

func TestMapStoreErr(t *testing.T) {
	conflict := func(constraint string) error {
		return &store.ConstraintError{Kind: store.ErrConflict, Constraint: constraint}
	}
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"not found", store.ErrNotFound, ErrNotFound},
		{"restricted", &store.ConstraintError{Kind: store.ErrRestricted}, ErrInUse},
		{"email", conflict(store.ConstraintUserEmail), ErrEmailAlreadyExists},
		{"slug", conflict(store.ConstraintProjectSlug), ErrSlugTaken},
		{"like", conflict(store.ConstraintLikeProjectUser), ErrAlreadyLiked},
		{"tag", conflict(store.ConstraintTagName), ErrAlreadyExists},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapStoreErr(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("mapStoreErr(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
	err := mapStoreErr(&store.ConstraintError{Kind: store.ErrInvalidReference, Constraint: store.ConstraintCommentParent})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "parentId" {
		t.Fatalf("expected parentId validation error, got %v", err)
	}
}

func TestValidEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", "first.last@studio.example"} {
		if !validEmail(ok) {
			t.Fatalf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "plain", "@b.co", "a@", "a@b", "a b@c.de", "a@@b.co", "a@b."} {
		if validEmail(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestLinkUsesPublicBaseURL(t *testing.T) {
	env := newTestEnv(t)
	if got := env.app.link("/verify-email", "abc"); got != "" {
		t.Fatalf("expected no link without base URL, got %q", got)
	}
	env.app.publicBaseURL = "https://studio.example"
	if got := env.app.link("/verify-email", "a+b"); got != "https://studio.example/verify-email?token=a%2Bb" {
		t.Fatalf("unexpected link %q", got)
	}
}
