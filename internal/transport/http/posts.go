package http

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtside/internal/domain"
	"courtside/internal/draft"
	"courtside/internal/service"
)

const maxMultipartMemory = 32 << 20

type formResponse struct {
	Form   domain.PostInput `json:"form"`
	Source draft.Source     `json:"source"`
}

type postDetail struct {
	*service.PostView
	IsOwner    bool `json:"isOwner"`
	HasApplied bool `json:"hasApplied"`
}

type createPostResponse struct {
	Post    *domain.Post `json:"post"`
	Warning string       `json:"warning,omitempty"`
}

func (h *handler) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Services.Posts.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *handler) games(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Services.Posts.Today(r.Context(), time.Now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *handler) mapMarkers(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Services.Posts.MapMarkers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *handler) getPost(w http.ResponseWriter, r *http.Request) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.Services.Posts.Get(r.Context(), postID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := postDetail{PostView: view}
	if id := identity(r); !id.IsZero() {
		out.IsOwner = view.AuthorID == id.ID
		if out.HasApplied, err = h.Services.Applications.HasApplied(r.Context(), id, postID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// createPost accepts JSON or a multipart form whose "attachments" parts are
// uploaded after the post is written.
func (h *handler) createPost(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	in, files, err := readPostInput(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for _, f := range files {
		defer closeUpload(f)
	}

	post, err := h.Services.Posts.Create(r.Context(), id, in, uploads(files))
	var partial *domain.PartialSuccessError
	switch {
	case errors.As(err, &partial):
		h.clearDraft(r, draft.NewPostKey)
		writeJSON(w, http.StatusCreated, createPostResponse{
			Post:    partial.Record.(*domain.Post),
			Warning: "Post created, but some attachments failed to upload",
		})
		return
	case err != nil:
		h.writeError(w, r, err)
		return
	}
	h.clearDraft(r, draft.NewPostKey)
	writeJSON(w, http.StatusCreated, createPostResponse{Post: post})
}

func (h *handler) newPostForm(w http.ResponseWriter, r *http.Request) {
	form, src, err := h.postForms.Load(r.Context(), identity(r).ID, draft.NewPostKey, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formResponse{Form: form, Source: src})
}

func (h *handler) saveNewPostDraft(w http.ResponseWriter, r *http.Request) {
	var in domain.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.postForms.Save(r.Context(), identity(r).ID, draft.NewPostKey, in); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) editPostForm(w http.ResponseWriter, r *http.Request) {
	post, ok := h.ownedPost(w, r)
	if !ok {
		return
	}
	server := domain.FormFromPost(post)
	form, src, err := h.postForms.Load(r.Context(), identity(r).ID, draft.EditPostKey(post.ID), &server)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formResponse{Form: form, Source: src})
}

func (h *handler) saveEditPostDraft(w http.ResponseWriter, r *http.Request) {
	post, ok := h.ownedPost(w, r)
	if !ok {
		return
	}
	var in domain.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.postForms.Save(r.Context(), identity(r).ID, draft.EditPostKey(post.ID), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updatePost(w http.ResponseWriter, r *http.Request) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in domain.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	post, err := h.Services.Posts.Update(r.Context(), identity(r), postID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearDraft(r, draft.EditPostKey(postID))
	writeJSON(w, http.StatusOK, post)
}

func (h *handler) cancelEditPost(w http.ResponseWriter, r *http.Request) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = h.postForms.Cancelled(r.Context(), identity(r).ID, draft.EditPostKey(postID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deletePost(w http.ResponseWriter, r *http.Request) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Services.Posts.Delete(r.Context(), identity(r), postID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.clearDraft(r, draft.EditPostKey(postID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) apply(w http.ResponseWriter, r *http.Request) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	app, err := h.Services.Applications.Apply(r.Context(), identity(r), postID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Services.Applications.Withdraw(r.Context(), identity(r), postID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) applicants(w http.ResponseWriter, r *http.Request) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.Services.Applications.Applicants(r.Context(), identity(r), postID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) ownedPost(w http.ResponseWriter, r *http.Request) (*domain.Post, bool) {
	postID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	post, err := h.Services.Posts.Owned(r.Context(), identity(r), postID)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return post, true
}

// clearDraft runs after a successful write; a leftover draft is only stale
// form state, so failure is logged.
func (h *handler) clearDraft(r *http.Request, key string) {
	if err := h.postForms.Submitted(r.Context(), identity(r).ID, key); err != nil {
		h.logger.Warn("draft cleanup failed", "key", key, "error", err)
	}
}

type upload struct {
	header *multipart.FileHeader
	file   multipart.File
}

func closeUpload(u upload) { _ = u.file.Close() }

func uploads(files []upload) []service.Upload {
	out := make([]service.Upload, len(files))
	for i, f := range files {
		out[i] = service.Upload{
			Filename:    f.header.Filename,
			ContentType: f.header.Header.Get("Content-Type"),
			Size:        f.header.Size,
			Body:        f.file,
		}
	}
	return out
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func readPostInput(w http.ResponseWriter, r *http.Request) (domain.PostInput, []upload, error) {
	var in domain.PostInput
	if !isMultipart(r) {
		return in, nil, decodeJSON(w, r, &in)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return in, nil, domain.Invalid("malformed upload")
	}
	v := r.MultipartForm.Value
	get := func(k string) string {
		if vals := v[k]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	in = domain.PostInput{
		Title:     get("title"),
		Location:  get("location"),
		EventDate: get("eventDate"),
		EventTime: get("eventTime"),
		Tag:       get("tag"),
		Content:   get("content"),
	}
	var err error
	if in.LocationLat, err = optionalFloat(get("locationLat")); err != nil {
		return in, nil, err
	}
	if in.LocationLng, err = optionalFloat(get("locationLng")); err != nil {
		return in, nil, err
	}

	headers := r.MultipartForm.File["attachments"]
	files := make([]upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			for _, open := range files {
				closeUpload(open)
			}
			return in, nil, domain.Invalid("unreadable attachment")
		}
		files = append(files, upload{header: fh, file: f})
	}
	return in, files, nil
}

func optionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, domain.Invalid("Coordinates must be numbers")
	}
	return &f, nil
}
