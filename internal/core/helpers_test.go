package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/auth"
	"gwi.com/chattyagent/internal/filestore"
	"gwi.com/chattyagent/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestUser(t *testing.T, s store.Store, email string) *store.User {
	t.Helper()
	u := &store.User{Email: email, PasswordHash: "x", Name: "test"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newTestAuthService(s store.Store) *AuthService {
	return NewAuthService(s, auth.NewTokenManager("test-secret", time.Hour), auth.MinBcryptCost, zap.NewNop())
}

// fakeGateway records every prompt and answers with reply or err. onCall, if
// set, runs before answering.
type fakeGateway struct {
	mu      sync.Mutex
	reply   string
	err     error
	onCall  func()
	prompts [][]PromptMessage
}

func (g *fakeGateway) Complete(_ context.Context, prompt []PromptMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.onCall != nil {
		g.onCall()
	}
	return g.reply, g.err
}

func (g *fakeGateway) lastPrompt() []PromptMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return nil
	}
	return g.prompts[len(g.prompts)-1]
}

// fakeBackend keeps files in memory.
type fakeBackend struct {
	mu        sync.Mutex
	files     map[string]filestore.File
	uploads   int
	deleted   []string
	uploadErr error
	deleteErr error
	brokenIDs map[string]bool
	seq       int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{files: map[string]filestore.File{}, brokenIDs: map[string]bool{}}
}

func (b *fakeBackend) Upload(_ context.Context, filename, _ string, body io.Reader, _ int64) (*filestore.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads++
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	b.seq++
	f := filestore.File{
		ID:        fmt.Sprintf("file-%d", b.seq),
		Filename:  filename,
		Bytes:     int64(len(data)),
		CreatedAt: time.Now().UTC(),
		Purpose:   filestore.Purpose,
	}
	b.files[f.ID] = f
	return &f, nil
}

func (b *fakeBackend) Get(_ context.Context, id string) (*filestore.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.brokenIDs[id] {
		return nil, errors.New("backend unavailable")
	}
	f, ok := b.files[id]
	if !ok {
		return nil, filestore.ErrNotFound
	}
	return &f, nil
}

func (b *fakeBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, id)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.files, id)
	return nil
}
