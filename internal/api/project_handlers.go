package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gwi.com/chattyagent/internal/core"
	"gwi.com/chattyagent/internal/store"
)

type CreateProjectRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"systemPrompt"`
}

// UpdateProjectRequest uses pointers so absent fields stay unchanged.
type UpdateProjectRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	SystemPrompt *string `json:"systemPrompt"`
}

func (h *APIHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	project, err := h.projects.Create(r.Context(), currentUser(r).ID, core.ProjectInput{
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		h.fail(w, r, err, "Error creating project")
		return
	}
	respond(w, http.StatusCreated, "Project created successfully", M{"project": project})
}

func (h *APIHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	page := core.NewPage(queryInt(r, "page"), queryInt(r, "limit"), core.DefaultProjectPageSize)
	projects, pagination, err := h.projects.List(r.Context(), currentUser(r).ID, r.URL.Query().Get("search"), page)
	if err != nil {
		h.fail(w, r, err, "Error fetching projects")
		return
	}
	respond(w, http.StatusOK, "", M{"projects": projects, "pagination": pagination})
}

func (h *APIHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), currentUser(r).ID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.fail(w, r, err, "Error fetching project")
		return
	}
	respond(w, http.StatusOK, "", M{"project": project})
}

func (h *APIHandler) UpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	project, err := h.projects.Update(r.Context(), currentUser(r).ID, chi.URLParam(r, "projectID"), store.ProjectPatch{
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		h.fail(w, r, err, "Error updating project")
		return
	}
	respond(w, http.StatusOK, "Project updated successfully", M{"project": project})
}

func (h *APIHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), currentUser(r).ID, chi.URLParam(r, "projectID")); err != nil {
		h.fail(w, r, err, "Error deleting project")
		return
	}
	respond(w, http.StatusOK, "Project deleted successfully", nil)
}
