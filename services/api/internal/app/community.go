package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/events"
	"portfoliohub/pkg/store"
)

const maxCommentLength = 2000

var tagColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ListTags is public.
func (a *App) ListTags() ([]domain.Tag, error) {
	tags, err := a.store.ListTags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (a *App) CreateTag(actor domain.User, name, color string) (domain.Tag, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return domain.Tag{}, err
	}
	name, err := requireText("name", name, 50)
	if err != nil {
		return domain.Tag{}, err
	}
	slug := util.Slugify(name)
	if slug == "" {
		return domain.Tag{}, invalid("name", "must contain letters or digits")
	}
	color = strings.TrimSpace(color)
	if color != "" && !tagColorPattern.MatchString(color) {
		return domain.Tag{}, invalid("color", "must look like #1a2b3c")
	}
	tag := domain.Tag{ID: util.NewID(), Name: name, Slug: slug, Color: strings.ToLower(color), CreatedAt: a.now()}
	if err := a.store.CreateTag(tag); err != nil {
		return domain.Tag{}, fmt.Errorf("create tag: %w", mapStoreErr(err))
	}
	return tag, nil
}

// DeleteTag detaches the tag from every project and removes it.
func (a *App) DeleteTag(actor domain.User, id string) error {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return err
	}
	if err := a.store.DeleteTag(id); err != nil {
		return fmt.Errorf("delete tag: %w", mapStoreErr(err))
	}
	return nil
}

func (a *App) TagUsage(actor domain.User) ([]store.TagUsage, error) {
	if err := require(actor, domain.PermAuthorProjects); err != nil {
		return nil, err
	}
	usage, err := a.store.TagUsage()
	if err != nil {
		return nil, fmt.Errorf("tag usage: %w", err)
	}
	return usage, nil
}

// CommentAuthor is the public part of a commenter's account.
type CommentAuthor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// CommentNode is a comment with its visible replies.
type CommentNode struct {
	domain.Comment
	Author  CommentAuthor `json:"author"`
	Replies []CommentNode `json:"replies"`
}

// ListProjectComments returns a page of approved top-level comments of a
// published project, each with its approved replies nested.
func (a *App) ListProjectComments(slug string, page store.Page) ([]CommentNode, int, error) {
	p, err := a.publishedProject(slug)
	if err != nil {
		return nil, 0, err
	}
	approved := true
	roots, total, err := a.store.ListComments(store.CommentFilter{ProjectID: p.ID, Approved: &approved, TopLevelOnly: true}, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	all, err := a.allComments(store.CommentFilter{ProjectID: p.ID, Approved: &approved})
	if err != nil {
		return nil, 0, err
	}
	children := map[string][]domain.Comment{}
	for _, c := range all {
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c)
		}
	}
	authors := map[string]CommentAuthor{}
	var build func(c domain.Comment, depth int) (CommentNode, error)
	build = func(c domain.Comment, depth int) (CommentNode, error) {
		author, err := a.commentAuthor(authors, c.AuthorID)
		if err != nil {
			return CommentNode{}, err
		}
		node := CommentNode{Comment: c, Author: author, Replies: []CommentNode{}}
		if depth >= 32 {
			return node, nil
		}
		for _, child := range children[c.ID] {
			n, err := build(child, depth+1)
			if err != nil {
				return CommentNode{}, err
			}
			node.Replies = append(node.Replies, n)
		}
		return node, nil
	}
	out := make([]CommentNode, 0, len(roots))
	for _, c := range roots {
		node, err := build(c, 0)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, node)
	}
	return out, total, nil
}

func (a *App) allComments(filter store.CommentFilter) ([]domain.Comment, error) {
	var out []domain.Comment
	page := store.Page{Limit: store.MaxPageLimit}
	for {
		items, total, err := a.store.ListComments(filter, page)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		out = append(out, items...)
		page.Offset += len(items)
		if len(items) == 0 || page.Offset >= total {
			return out, nil
		}
	}
}

func (a *App) commentAuthor(cache map[string]CommentAuthor, id string) (CommentAuthor, error) {
	if author, ok := cache[id]; ok {
		return author, nil
	}
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return CommentAuthor{}, fmt.Errorf("fetch comment author: %w", err)
	}
	author := CommentAuthor{ID: id, Name: "deleted user"}
	if ok {
		author = CommentAuthor{ID: user.ID, Name: user.Name, AvatarURL: user.AvatarURL}
	}
	cache[id] = author
	return author, nil
}

// CreateComment posts a comment or reply on a published project. Comments by
// moderators are approved immediately; others wait for moderation.
func (a *App) CreateComment(ctx context.Context, user domain.User, slug, content, parentID string) (domain.Comment, error) {
	p, err := a.publishedProject(slug)
	if err != nil {
		return domain.Comment{}, err
	}
	content, err = requireText("content", util.PlainText(content), maxCommentLength)
	if err != nil {
		return domain.Comment{}, err
	}
	parentID = strings.TrimSpace(parentID)
	if err := checkIDs("parentId", []string{parentID}); err != nil {
		return domain.Comment{}, err
	}
	if parentID != "" {
		parent, ok, err := a.store.GetComment(parentID)
		if err != nil {
			return domain.Comment{}, fmt.Errorf("fetch parent comment: %w", err)
		}
		if !ok || parent.ProjectID != p.ID {
			return domain.Comment{}, invalid("parentId", "parent comment does not belong to this project")
		}
	}
	now := a.now()
	c := domain.Comment{
		ID:         util.NewID(),
		ProjectID:  p.ID,
		AuthorID:   user.ID,
		ParentID:   parentID,
		Content:    content,
		IsApproved: user.Role.Can(domain.PermModerateComments),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.CreateComment(c); err != nil {
		return domain.Comment{}, fmt.Errorf("create comment: %w", mapStoreErr(err))
	}
	if err := a.store.TouchUserActivity(user.ID, now, false); err != nil {
		util.LoggerFromContext(ctx).Warn("touch_user_activity_failed", "user_id", user.ID, "err", err)
	}
	a.emit(ctx, events.CommentCreated, map[string]any{
		"commentId": c.ID,
		"projectId": p.ID,
		"authorId":  user.ID,
		"parentId":  c.ParentID,
		"approved":  c.IsApproved,
	})
	return c, nil
}

// DeleteComment removes a comment and its replies. Authors may delete their
// own comments; moderators any.
func (a *App) DeleteComment(actor domain.User, id string) error {
	c, ok, err := a.store.GetComment(id)
	if err != nil {
		return fmt.Errorf("fetch comment: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if c.AuthorID != actor.ID && !actor.Role.Can(domain.PermModerateComments) {
		return ErrForbidden
	}
	if err := a.store.DeleteComment(id); err != nil {
		return fmt.Errorf("delete comment: %w", mapStoreErr(err))
	}
	return nil
}

// ListPendingComments returns comments awaiting moderation, oldest first.
func (a *App) ListPendingComments(actor domain.User, projectID string, page store.Page) ([]domain.Comment, int, error) {
	if err := require(actor, domain.PermModerateComments); err != nil {
		return nil, 0, err
	}
	if err := checkIDs("projectId", []string{projectID}); err != nil {
		return nil, 0, err
	}
	pending := false
	items, total, err := a.store.ListComments(store.CommentFilter{ProjectID: projectID, Approved: &pending}, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	return items, total, nil
}

// ModerateComment approves a comment, or rejects it by deleting it with its replies.
func (a *App) ModerateComment(actor domain.User, id string, approve bool) error {
	if err := require(actor, domain.PermModerateComments); err != nil {
		return err
	}
	var err error
	if approve {
		err = a.store.SetCommentApproval(id, true)
	} else {
		err = a.store.DeleteComment(id)
	}
	if err != nil {
		return fmt.Errorf("moderate comment: %w", mapStoreErr(err))
	}
	return nil
}

// LikeProject records a like and returns the new like count.
func (a *App) LikeProject(user domain.User, slug string) (int, error) {
	p, err := a.publishedProject(slug)
	if err != nil {
		return 0, err
	}
	like := domain.Like{ID: util.NewID(), ProjectID: p.ID, UserID: user.ID, CreatedAt: a.now()}
	if err := a.store.CreateLike(like); err != nil {
		err = mapStoreErr(err)
		if errors.Is(err, ErrAlreadyExists) {
			err = ErrAlreadyLiked
		}
		return 0, fmt.Errorf("like project: %w", err)
	}
	return a.likeCount(p.ID)
}

// UnlikeProject removes the caller's like; ErrNotFound when there was none.
func (a *App) UnlikeProject(user domain.User, slug string) (int, error) {
	p, err := a.publishedProject(slug)
	if err != nil {
		return 0, err
	}
	removed, err := a.store.DeleteLike(p.ID, user.ID)
	if err != nil {
		return 0, fmt.Errorf("unlike project: %w", err)
	}
	if !removed {
		return 0, ErrNotFound
	}
	return a.likeCount(p.ID)
}

func (a *App) likeCount(projectID string) (int, error) {
	counts, err := a.store.LikeCounts([]string{projectID})
	if err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return counts[projectID], nil
}
