package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/store"
)

const (
	// ApologyMessage replaces the assistant reply whenever the gateway fails.
	ApologyMessage = "I apologize, but I encountered an error while processing your request. Please try again."

	// promptHistoryWindow is how many prior messages go into a prompt.
	promptHistoryWindow = 10
)

type ChatProject struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
}

// ChatDetail is a chat with its full history and the parent project.
type ChatDetail struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Project   ChatProject     `json:"project"`
	Messages  []store.Message `json:"messages"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Exchange is the pair of messages appended by one send.
type Exchange struct {
	UserMessage      store.Message `json:"userMessage"`
	AssistantMessage store.Message `json:"assistantMessage"`
}

type ChatService struct {
	store   store.Store
	gateway Gateway
	logger  *zap.Logger
	now     func() time.Time
}

func NewChatService(s store.Store, gateway Gateway, logger *zap.Logger) *ChatService {
	return &ChatService{
		store:   s,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *ChatService) Create(ctx context.Context, ownerID, projectID, title string) (*store.Chat, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, invalidInput("Project ID is required")
	}

	if _, err := s.store.GetProject(ctx, ownerID, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to verify project: %w", err)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "Chat " + s.now().Format("1/2/2006")
	}

	chat := &store.Chat{Title: title, ProjectID: projectID, OwnerID: ownerID}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

func (s *ChatService) List(ctx context.Context, ownerID, projectID string, page store.Page) ([]store.ChatSummary, Pagination, error) {
	chats, total, err := s.store.ListChats(ctx, ownerID, store.ChatQuery{ProjectID: projectID, Page: page})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, paginate(page, total), nil
}

func (s *ChatService) Get(ctx context.Context, ownerID, id string) (*ChatDetail, error) {
	chat, err := s.store.GetChat(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	detail := &ChatDetail{
		ID:        chat.ID,
		Title:     chat.Title,
		Project:   ChatProject{ID: chat.ProjectID},
		Messages:  chat.Messages,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
	project, err := s.store.GetProject(ctx, ownerID, chat.ProjectID)
	switch {
	case err == nil:
		detail.Project.Name = project.Name
		detail.Project.SystemPrompt = project.SystemPrompt
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to get project of chat: %w", err)
	}
	return detail, nil
}

// SendMessage appends the user's message and the assistant's reply. Gateway
// failures never surface: the reply becomes ApologyMessage instead.
func (s *ChatService) SendMessage(ctx context.Context, ownerID, chatID, text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if strings.TrimSpace(chatID) == "" || text == "" {
		return nil, invalidInput("Chat ID and message are required")
	}

	chat, err := s.store.GetChat(ctx, ownerID, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	systemPrompt := ""
	project, err := s.store.GetProject(ctx, ownerID, chat.ProjectID)
	if err == nil {
		systemPrompt = project.SystemPrompt
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get project of chat: %w", err)
	}

	userMsg := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleUser,
		Content:   text,
		Timestamp: s.now().UTC(),
	}

	reply, err := s.gateway.Complete(ctx, BuildPrompt(systemPrompt, chat.Messages, userMsg))
	if err != nil {
		s.logger.Warn("LLM completion failed",
			zap.String("chat_id", chatID),
			zap.Error(fmt.Errorf("%w: %w", ErrUpstream, err)))
		reply = ApologyMessage
	}

	assistantMsg := store.Message{
		ID:        uuid.NewString(),
		Role:      store.RoleAssistant,
		Content:   reply,
		Timestamp: s.now().UTC(),
	}

	// The exchange is stored even when the caller went away during the
	// completion.
	if err := s.store.AppendMessages(context.WithoutCancel(ctx), ownerID, chatID, userMsg, assistantMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to store messages: %w", err)
	}
	return &Exchange{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// BuildPrompt returns the system message, the last promptHistoryWindow
// messages of history and next, in that order.
func BuildPrompt(systemPrompt string, history []store.Message, next store.Message) []PromptMessage {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if len(history) > promptHistoryWindow {
		history = history[len(history)-promptHistoryWindow:]
	}

	prompt := make([]PromptMessage, 0, len(history)+2)
	prompt = append(prompt, PromptMessage{Role: store.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		prompt = append(prompt, PromptMessage{Role: m.Role, Content: m.Content})
	}
	return append(prompt, PromptMessage{Role: next.Role, Content: next.Content})
}

func (s *ChatService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.SoftDeleteChat(ctx, ownerID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}
