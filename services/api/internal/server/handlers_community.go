package server

import (
	"net/http"
	"strings"

	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
)

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items, total, err := s.app.ListProjectComments(r.PathValue("slug"), page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, page))
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.commentLimiter, "comment.create", "too many comments") {
		return
	}
	var req struct {
		Content  string `json:"content"`
		ParentID string `json:"parentId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.app.CreateComment(r.Context(), user, r.PathValue("slug"), req.Content, req.ParentID)
	if err != nil {
		s.audit(r, "comment.create", "fail", "user_id", user.ID)
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteComment(user, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request, user domain.User) {
	count, err := s.app.LikeProject(user, r.PathValue("slug"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": true, "likeCount": count})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request, user domain.User) {
	count, err := s.app.UnlikeProject(user, r.PathValue("slug"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": false, "likeCount": count})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.app.ListTags()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tags})
}

func (s *Server) handleAdminCreateTag(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := s.app.CreateTag(user, req.Name, req.Color)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleAdminDeleteTag(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteTag(user, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminTagUsage(w http.ResponseWriter, r *http.Request, user domain.User) {
	usage, err := s.app.TagUsage(user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if usage == nil {
		usage = []store.TagUsage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": usage})
}

func (s *Server) handleAdminPendingComments(w http.ResponseWriter, r *http.Request, user domain.User) {
	page, err := parsePage(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items, total, err := s.app.ListPendingComments(user, strings.TrimSpace(r.URL.Query().Get("projectId")), page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, page))
}

func (s *Server) handleAdminApproveComment(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.moderate(w, r, user, true)
}

func (s *Server) handleAdminRejectComment(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.moderate(w, r, user, false)
}

func (s *Server) moderate(w http.ResponseWriter, r *http.Request, user domain.User, approve bool) {
	id := r.PathValue("id")
	if err := s.app.ModerateComment(user, id, approve); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "comment.moderate", "success", "user_id", user.ID, "comment_id", id, "approved", approve)
	w.WriteHeader(http.StatusNoContent)
}
