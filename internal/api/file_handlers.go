package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gwi.com/chattyagent/internal/core"
)

// multipartOverhead is the slack allowed on top of MaxFileSize for the
// multipart framing and the other form fields.
const multipartOverhead = 1 << 20

func (h *APIHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, core.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(core.MaxFileSize + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, core.ErrFileTooLarge, "")
			return
		}
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	uploaded, err := h.files.Upload(r.Context(), currentUser(r).ID, chi.URLParam(r, "projectID"), core.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		if errors.Is(err, core.ErrUpstream) {
			h.logger.Sugar().Errorw("File upload failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Error uploading file to storage", h.details(err)...)
			return
		}
		h.fail(w, r, err, "Error uploading file")
		return
	}
	respond(w, http.StatusOK, "File uploaded successfully", M{"file": uploaded})
}

func (h *APIHandler) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.List(r.Context(), currentUser(r).ID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.fail(w, r, err, "Error fetching project files")
		return
	}
	respond(w, http.StatusOK, "", M{"files": files})
}

func (h *APIHandler) DeleteFileHandler(w http.ResponseWriter, r *http.Request) {
	err := h.files.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "projectID"), chi.URLParam(r, "fileID"))
	if err != nil {
		h.fail(w, r, err, "Error deleting file")
		return
	}
	respond(w, http.StatusOK, "File deleted successfully", nil)
}
