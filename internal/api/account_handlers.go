package api

import (
	"io"
	"net/http"
	"strconv"

	"paper-trade-go/internal/apperror"
	"paper-trade-go/internal/auth"
	"paper-trade-go/internal/profile"
)

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	p, err := h.Profile.Get(r.Context(), sess.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, p)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req profile.Update
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Profile.Update(r.Context(), sess.UserID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, p)
}

func (h *Handler) getPicture(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	data, contentType, err := h.Profile.Picture(r.Context(), sess.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) putPicture(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	// One byte past the limit is enough to tell that the upload is too large.
	limit := h.opts.MaxImageBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		h.fail(w, r, errInvalidBody)
		return
	}
	if int64(len(data)) > limit {
		h.fail(w, r, apperror.ErrImageTooLarge)
		return
	}

	contentType, err := h.Profile.PutPicture(r.Context(), sess.UserID, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.success(w, map[string]string{"contentType": contentType})
}

func (h *Handler) deletePicture(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := h.Profile.DeletePicture(r.Context(), sess.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.message(w, "profile picture removed")
}
