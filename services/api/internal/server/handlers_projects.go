package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"portfoliohub/internal/util"
	"portfoliohub/pkg/domain"
	"portfoliohub/pkg/store"
	"portfoliohub/services/api/internal/app"
)

// parseProjectQuery reads the list filters shared by the public and staff
// listings. Status and author filters are honoured only for staff.
func parseProjectQuery(r *http.Request, staff bool) (store.ProjectQuery, error) {
	q := r.URL.Query()
	page, err := parsePage(r)
	if err != nil {
		return store.ProjectQuery{}, err
	}
	query := store.ProjectQuery{Page: page}
	if raw := strings.TrimSpace(q.Get("category")); raw != "" {
		category, ok := domain.ParseProjectCategory(raw)
		if !ok {
			return query, &app.ValidationError{Field: "category", Message: "unknown category"}
		}
		query.Filter.Category = category
	}
	if query.Filter.Featured, err = parseOptionalBool(r, "featured"); err != nil {
		return query, err
	}
	query.Filter.TagSlug = strings.TrimSpace(q.Get("tag"))
	query.Filter.Search = strings.TrimSpace(q.Get("q"))
	query.Filter.Keyword = strings.ToLower(strings.TrimSpace(q.Get("keyword")))
	query.Sort.Field = strings.TrimSpace(q.Get("sort"))
	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "desc":
		query.Sort.Desc = true
	case "asc":
	default:
		return query, &app.ValidationError{Field: "order", Message: "must be asc or desc"}
	}
	if staff {
		for _, raw := range strings.Split(q.Get("status"), ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			status, ok := domain.ParseProjectStatus(raw)
			if !ok {
				return query, &app.ValidationError{Field: "status", Message: "unknown status"}
			}
			query.Filter.Statuses = append(query.Filter.Statuses, status)
		}
		query.Filter.AuthorID = strings.TrimSpace(q.Get("authorId"))
		if query.Filter.AuthorID != "" && !util.IsID(query.Filter.AuthorID) {
			return query, &app.ValidationError{Field: "authorId", Message: "must be a valid id"}
		}
	}
	return query, nil
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	query, err := parseProjectQuery(r, false)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items, total, err := s.app.ListPublishedProjects(query)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, query.Page))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	var viewerID string
	if user, ok := s.optionalUser(r); ok {
		viewerID = user.ID
	}
	detail, err := s.app.GetPublishedProject(r.Context(), r.PathValue("slug"), s.clientIP(r), viewerID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type projectRequest struct {
	Title           *string                 `json:"title"`
	Slug            *string                 `json:"slug"`
	Summary         *string                 `json:"summary"`
	Content         *string                 `json:"content"`
	Category        *domain.ProjectCategory `json:"category"`
	Status          *domain.ProjectStatus   `json:"status"`
	CoverImageURL   *string                 `json:"coverImageUrl"`
	Location        *string                 `json:"location"`
	ClientName      *string                 `json:"clientName"`
	Year            *int                    `json:"year"`
	MetaTitle       *string                 `json:"metaTitle"`
	MetaDescription *string                 `json:"metaDescription"`
	Keywords        []string                `json:"keywords"`
	IsFeatured      *bool                   `json:"isFeatured"`
	FeaturedOrder   *int                    `json:"featuredOrder"`
	TagIDs          []string                `json:"tagIds"`
}

func (req projectRequest) patch() app.ProjectPatch {
	return app.ProjectPatch{
		Title: req.Title, Slug: req.Slug, Summary: req.Summary, Content: req.Content,
		Category: req.Category, Status: req.Status, CoverImageURL: req.CoverImageURL,
		Location: req.Location, ClientName: req.ClientName, Year: req.Year,
		MetaTitle: req.MetaTitle, MetaDescription: req.MetaDescription,
		Keywords: req.Keywords, IsFeatured: req.IsFeatured, FeaturedOrder: req.FeaturedOrder,
		TagIDs: req.TagIDs,
	}
}

func (req projectRequest) input() app.ProjectInput {
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	in := app.ProjectInput{
		Title: str(req.Title), Slug: str(req.Slug), Summary: str(req.Summary), Content: str(req.Content),
		CoverImageURL: str(req.CoverImageURL), Location: str(req.Location), ClientName: str(req.ClientName),
		MetaTitle: str(req.MetaTitle), MetaDescription: str(req.MetaDescription),
		Keywords: req.Keywords, TagIDs: req.TagIDs,
	}
	if req.Category != nil {
		in.Category = *req.Category
	}
	if req.Status != nil {
		in.Status = *req.Status
	}
	if req.Year != nil {
		in.Year = *req.Year
	}
	if req.IsFeatured != nil {
		in.IsFeatured = *req.IsFeatured
	}
	if req.FeaturedOrder != nil {
		in.FeaturedOrder = *req.FeaturedOrder
	}
	return in
}

func (s *Server) handleAdminListProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	query, err := parseProjectQuery(r, true)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items, total, err := s.app.ListProjectsForStaff(user, query)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items, total, query.Page))
}

func (s *Server) handleAdminCreateProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := s.app.CreateProject(r.Context(), user, req.input())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "project.create", "success", "user_id", user.ID, "project_id", project.ID)
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleAdminGetProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	detail, err := s.app.GetProjectForStaff(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleAdminUpdateProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := s.app.UpdateProject(r.Context(), user, r.PathValue("id"), req.patch())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleAdminDeleteProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := r.PathValue("id")
	if err := s.app.DeleteProject(r.Context(), user, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "project.delete", "success", "user_id", user.ID, "project_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminSetProjectTags(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		TagIDs []string `json:"tagIds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	tags, err := s.app.SetProjectTags(user, r.PathValue("id"), req.TagIDs)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleAdminListAssets(w http.ResponseWriter, r *http.Request, user domain.User) {
	assets, err := s.app.ListAssets(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if assets == nil {
		assets = []domain.ProjectAsset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": assets})
}

func (s *Server) handleAdminUploadAsset(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "file exceeds upload limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer func() { _ = file.Close() }()
	if header.Size > s.maxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "file exceeds upload limit")
		return
	}
	if !s.isExtensionAllowed(header.Filename) {
		s.audit(r, "asset.upload", "fail", "user_id", user.ID, "reason", "extension")
		writeAppError(w, r, app.ErrUnsupportedFile)
		return
	}
	upload := app.AssetUpload{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		IsPrimary:   r.FormValue("isPrimary") == "true",
	}
	if raw := strings.TrimSpace(r.FormValue("type")); raw != "" {
		t, ok := domain.ParseAssetType(raw)
		if !ok {
			writeAppError(w, r, &app.ValidationError{Field: "type", Message: "unknown asset type"})
			return
		}
		upload.Type = t
	}
	if raw := strings.TrimSpace(r.FormValue("sortOrder")); raw != "" {
		if upload.SortOrder, err = strconv.Atoi(raw); err != nil {
			writeAppError(w, r, &app.ValidationError{Field: "sortOrder", Message: "must be an integer"})
			return
		}
	}
	asset, err := s.app.UploadAsset(r.Context(), user, r.PathValue("id"), upload)
	if err != nil {
		s.audit(r, "asset.upload", "fail", "user_id", user.ID)
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "asset.upload", "success", "user_id", user.ID, "asset_id", asset.ID, "size", asset.FileSize)
	writeJSON(w, http.StatusAccepted, asset)
}

func (s *Server) handleAdminUpdateAsset(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		SortOrder   *int    `json:"sortOrder"`
		IsPrimary   *bool   `json:"isPrimary"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := s.app.UpdateAsset(user, r.PathValue("id"), app.AssetPatch{
		Title: req.Title, Description: req.Description, SortOrder: req.SortOrder, IsPrimary: req.IsPrimary,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleAdminDeleteAsset(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteAsset(r.Context(), user, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminAssetDownload(w http.ResponseWriter, r *http.Request, user domain.User) {
	url, err := s.app.AssetDownloadURL(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
