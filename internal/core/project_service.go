package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/store"
)

const (
	DefaultSystemPrompt = "You are a helpful AI assistant."

	DefaultProjectPageSize = 10
	DefaultChatPageSize    = 20
	maxPageSize            = 100
)

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPage clamps a requested page. Zero values select the first page and
// the default size.
func NewPage(number, limit, defaultLimit int) store.Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return store.Page{Number: number, Limit: limit}
}

func paginate(p store.Page, total int) Pagination {
	return Pagination{
		Page:  p.Number,
		Limit: p.Limit,
		Total: total,
		Pages: (total + p.Limit - 1) / p.Limit,
	}
}

type ProjectInput struct {
	Name         string
	Description  string
	SystemPrompt string
}

type ProjectService struct {
	store  store.Store
	logger *zap.Logger
}

func NewProjectService(s store.Store, logger *zap.Logger) *ProjectService {
	return &ProjectService{store: s, logger: logger}
}

func (s *ProjectService) Create(ctx context.Context, ownerID string, in ProjectInput) (*store.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidInput("Project name is required")
	}

	if err := s.checkName(ctx, ownerID, name, ""); err != nil {
		return nil, err
	}

	systemPrompt := strings.TrimSpace(in.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	project := &store.Project{
		OwnerID:      ownerID,
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		SystemPrompt: systemPrompt,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

func (s *ProjectService) checkName(ctx context.Context, ownerID, name, excludeID string) error {
	taken, err := s.store.ProjectNameTaken(ctx, ownerID, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateName
	}
	return nil
}

func (s *ProjectService) List(ctx context.Context, ownerID, search string, page store.Page) ([]store.Project, Pagination, error) {
	projects, total, err := s.store.ListProjects(ctx, ownerID, store.ProjectQuery{Search: search, Page: page})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, paginate(page, total), nil
}

func (s *ProjectService) Get(ctx context.Context, ownerID, id string) (*store.Project, error) {
	project, err := s.store.GetProject(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// Update applies the non-nil fields of patch. A present but blank name is
// rejected; description and system prompt are trimmed.
func (s *ProjectService) Update(ctx context.Context, ownerID, id string, patch store.ProjectPatch) (*store.Project, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalidInput("Project name cannot be empty")
		}
		if err := s.checkName(ctx, ownerID, name, id); err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		patch.Description = &description
	}
	if patch.SystemPrompt != nil {
		systemPrompt := strings.TrimSpace(*patch.SystemPrompt)
		patch.SystemPrompt = &systemPrompt
	}

	project, err := s.store.UpdateProject(ctx, ownerID, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrProjectNotFound
		case errors.Is(err, store.ErrDuplicate):
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return project, nil
}

// Delete soft-deletes the project, then its chats. The two steps are not
// atomic: a failure in between leaves active chats under a deleted project.
func (s *ProjectService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.SoftDeleteProject(ctx, ownerID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}

	n, err := s.store.SoftDeleteProjectChats(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete chats of project %s: %w", id, err)
	}
	s.logger.Info("Project deleted", zap.String("project_id", id), zap.Int64("chats_deleted", n))
	return nil
}
