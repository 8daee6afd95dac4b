package http

import (
	"net/http"

	"courtside/internal/domain"
	"courtside/internal/service"
)

const avatarField = "avatar"

func (h *handler) myProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := h.Services.Profiles.Ensure(r.Context(), identity(r), "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	prof, err := h.Services.Profiles.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in domain.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	prof, err := h.Services.Profiles.Update(r.Context(), identity(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (h *handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarBytes+(1<<20))
	file, header, err := r.FormFile(avatarField)
	if err != nil {
		h.writeError(w, r, domain.Invalid("Please choose an image file"))
		return
	}
	defer file.Close()

	prof, err := h.Services.Profiles.UploadAvatar(r.Context(), identity(r), service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}
