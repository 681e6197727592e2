package store

import "time"

// Lifecycle is the soft-delete state of a project or chat.
type Lifecycle string

const (
	Active  Lifecycle = "active"
	Deleted Lifecycle = "deleted"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"` // Do not expose this in JSON responses
	Name         string    `json:"name" bson:"name"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

type Project struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Description  string    `json:"description" bson:"description"`
	SystemPrompt string    `json:"systemPrompt" bson:"system_prompt"`
	OwnerID      string    `json:"-" bson:"owner_id"`
	FileIDs      []string  `json:"fileIds" bson:"file_ids"`
	Status       Lifecycle `json:"-" bson:"status"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updated_at"`
}

// ProjectPatch carries the fields of a partial update; nil means unchanged.
type ProjectPatch struct {
	Name         *string
	Description  *string
	SystemPrompt *string
}

type Chat struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	ProjectID string    `json:"projectId" bson:"project_id"`
	OwnerID   string    `json:"-" bson:"owner_id"`
	Messages  []Message `json:"messages" bson:"messages"`
	Status    Lifecycle `json:"-" bson:"status"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// ChatSummary is a chat as listed: no message bodies.
type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ProjectID    string    `json:"projectId"`
	ProjectName  string    `json:"projectName"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Message struct {
	ID        string    `json:"id" bson:"id"`
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
