package store

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned for missing, deleted and foreign-owned records alike.
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Page is a normalized page request.
type Page struct {
	Number int
	Limit  int
}

// Offset is the number of records skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

type ProjectQuery struct {
	Search string
	Page   Page
}

type ChatQuery struct {
	ProjectID string
	Page      Page
}

// Store is the persistence contract. Every project and chat accessor is
// scoped by owner and only ever sees active records.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	UpdateUserName(ctx context.Context, id, name string) (*User, error)

	CreateProject(ctx context.Context, p *Project) error
	// ProjectNameTaken reports whether another active project of the owner
	// already uses name. excludeID may be empty.
	ProjectNameTaken(ctx context.Context, ownerID, name, excludeID string) (bool, error)
	GetProject(ctx context.Context, ownerID, id string) (*Project, error)
	ListProjects(ctx context.Context, ownerID string, q ProjectQuery) ([]Project, int, error)
	UpdateProject(ctx context.Context, ownerID, id string, patch ProjectPatch) (*Project, error)
	SoftDeleteProject(ctx context.Context, ownerID, id string) error
	AddProjectFile(ctx context.Context, ownerID, projectID, fileID string) error
	RemoveProjectFile(ctx context.Context, ownerID, projectID, fileID string) error

	CreateChat(ctx context.Context, c *Chat) error
	GetChat(ctx context.Context, ownerID, id string) (*Chat, error)
	ListChats(ctx context.Context, ownerID string, q ChatQuery) ([]ChatSummary, int, error)
	AppendMessages(ctx context.Context, ownerID, chatID string, msgs ...Message) error
	SoftDeleteChat(ctx context.Context, ownerID, id string) error
	SoftDeleteProjectChats(ctx context.Context, ownerID, projectID string) (int64, error)

	Close() error
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
