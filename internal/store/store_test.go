package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreTests runs the behaviour every Store implementation shares. open
// must return an empty store.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	tests := []struct {
		name string
		run  func(t *testing.T, s Store)
	}{
		{"UserEmailIsCaseInsensitive", testUserEmailIsCaseInsensitive},
		{"UpdateUserName", testUpdateUserName},
		{"ProjectsAreScopedToOwner", testProjectsAreScopedToOwner},
		{"ProjectNameUniquePerOwner", testProjectNameUniquePerOwner},
		{"UpdateProjectPartial", testUpdateProjectPartial},
		{"ListProjectsSearchAndPagination", testListProjectsSearchAndPagination},
		{"ProjectFiles", testProjectFiles},
		{"ChatMessagesKeepOrder", testChatMessagesKeepOrder},
		{"AppendMessagesRequiresOwner", testAppendMessagesRequiresOwner},
		{"SoftDeleteCascade", testSoftDeleteCascade},
		{"ListChatsOrderAndPaging", testListChatsOrderAndPaging},
		{"SearchFoldsUnicode", testSearchFoldsUnicode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, open(t))
		})
	}
}

func createUser(t *testing.T, s Store, email string) *User {
	t.Helper()
	u := &User{Email: email, PasswordHash: "hash", Name: "n"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func createProject(t *testing.T, s Store, ownerID, name string) *Project {
	t.Helper()
	p := &Project{OwnerID: ownerID, Name: name, SystemPrompt: "You are a helpful AI assistant."}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

// tick separates writes whose order a test depends on; Mongo keeps
// milliseconds only.
const tick = 2 * time.Millisecond

func firstPage(limit int) Page {
	return Page{Number: 1, Limit: limit}
}

func testUserEmailIsCaseInsensitive(t *testing.T, s Store) {
	ctx := context.Background()

	u := createUser(t, s, "  Alice@Example.com ")
	assert.Equal(t, "alice@example.com", u.Email)

	err := s.CreateUser(ctx, &User{Email: "ALICE@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.GetUserByEmail(ctx, "ALICE@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testUpdateUserName(t *testing.T, s Store) {
	ctx := context.Background()
	u := createUser(t, s, "bob@example.com")

	updated, err := s.UpdateUserName(ctx, u.ID, "Robert")
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.Name)
	assert.Equal(t, u.Email, updated.Email)

	_, err = s.UpdateUserName(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testProjectsAreScopedToOwner(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	bob := createUser(t, s, "bob@example.com")
	p := createProject(t, s, alice.ID, "Research")

	_, err := s.GetProject(ctx, bob.ID, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	name := "Stolen"
	_, err = s.UpdateProject(ctx, bob.ID, p.ID, ProjectPatch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SoftDeleteProject(ctx, bob.ID, p.ID), ErrNotFound)
	assert.ErrorIs(t, s.AddProjectFile(ctx, bob.ID, p.ID, "file-1"), ErrNotFound)

	list, total, err := s.ListProjects(ctx, bob.ID, ProjectQuery{Page: firstPage(10)})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	got, err := s.GetProject(ctx, alice.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Research", got.Name)
	assert.Equal(t, []string{}, got.FileIDs)
}

func testProjectNameUniquePerOwner(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	bob := createUser(t, s, "bob@example.com")
	p := createProject(t, s, alice.ID, "Research")

	taken, err := s.ProjectNameTaken(ctx, alice.ID, "Research", "")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.ProjectNameTaken(ctx, alice.ID, "Research", p.ID)
	require.NoError(t, err)
	assert.False(t, taken, "renaming a project to its own name is allowed")

	taken, err = s.ProjectNameTaken(ctx, bob.ID, "Research", "")
	require.NoError(t, err)
	assert.False(t, taken)

	err = s.CreateProject(ctx, &Project{OwnerID: alice.ID, Name: "Research", SystemPrompt: "x"})
	assert.ErrorIs(t, err, ErrDuplicate)

	createProject(t, s, bob.ID, "Research")

	require.NoError(t, s.SoftDeleteProject(ctx, alice.ID, p.ID))
	taken, err = s.ProjectNameTaken(ctx, alice.ID, "Research", "")
	require.NoError(t, err)
	assert.False(t, taken, "deleted projects free their name")
	createProject(t, s, alice.ID, "Research")
}

func testUpdateProjectPartial(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	p := createProject(t, s, alice.ID, "Research")

	desc := "papers"
	updated, err := s.UpdateProject(ctx, alice.ID, p.ID, ProjectPatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Research", updated.Name)
	assert.Equal(t, "papers", updated.Description)
	assert.Equal(t, p.SystemPrompt, updated.SystemPrompt)
	assert.False(t, updated.UpdatedAt.Before(p.UpdatedAt))
}

func testListProjectsSearchAndPagination(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")

	for i := 0; i < 25; i++ {
		createProject(t, s, alice.ID, fmt.Sprintf("Project %02d", i))
	}
	time.Sleep(tick)
	special := &Project{OwnerID: alice.ID, Name: "Notes", Description: "100% Research_notes", SystemPrompt: "x"}
	require.NoError(t, s.CreateProject(ctx, special))

	list, total, err := s.ListProjects(ctx, alice.ID, ProjectQuery{Page: Page{Number: 3, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 26, total)
	assert.Len(t, list, 6)

	list, total, err = s.ListProjects(ctx, alice.ID, ProjectQuery{Page: firstPage(10)})
	require.NoError(t, err)
	assert.Equal(t, 26, total)
	require.Len(t, list, 10)
	assert.Equal(t, "Notes", list[0].Name, "most recently updated first")

	list, total, err = s.ListProjects(ctx, alice.ID, ProjectQuery{Search: "research", Page: firstPage(10)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, special.ID, list[0].ID)

	_, total, err = s.ListProjects(ctx, alice.ID, ProjectQuery{Search: "100%", Page: firstPage(10)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = s.ListProjects(ctx, alice.ID, ProjectQuery{Search: "_", Page: firstPage(10)})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "underscore is matched literally")

	_, total, err = s.ListProjects(ctx, alice.ID, ProjectQuery{Search: "project 1", Page: firstPage(10)})
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func testProjectFiles(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	p := createProject(t, s, alice.ID, "Research")

	require.NoError(t, s.AddProjectFile(ctx, alice.ID, p.ID, "file-b"))
	require.NoError(t, s.AddProjectFile(ctx, alice.ID, p.ID, "file-a"))

	got, err := s.GetProject(ctx, alice.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"file-b", "file-a"}, got.FileIDs)

	require.NoError(t, s.RemoveProjectFile(ctx, alice.ID, p.ID, "file-b"))
	assert.ErrorIs(t, s.RemoveProjectFile(ctx, alice.ID, p.ID, "file-b"), ErrNotFound)

	got, err = s.GetProject(ctx, alice.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"file-a"}, got.FileIDs)
}

func newMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func testChatMessagesKeepOrder(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	p := createProject(t, s, alice.ID, "Research")

	c := &Chat{ProjectID: p.ID, OwnerID: alice.ID, Title: "Chat 1"}
	require.NoError(t, s.CreateChat(ctx, c))

	require.NoError(t, s.AppendMessages(ctx, alice.ID, c.ID,
		newMessage(RoleUser, "hi"), newMessage(RoleAssistant, "hello")))
	require.NoError(t, s.AppendMessages(ctx, alice.ID, c.ID,
		newMessage(RoleUser, "again"), newMessage(RoleAssistant, "sure")))

	got, err := s.GetChat(ctx, alice.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 4)
	contents := []string{}
	for _, m := range got.Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"hi", "hello", "again", "sure"}, contents)
	assert.Equal(t, RoleAssistant, got.Messages[3].Role)

	list, total, err := s.ListChats(ctx, alice.ID, ChatQuery{ProjectID: p.ID, Page: firstPage(20)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].MessageCount)
	assert.Equal(t, "Research", list[0].ProjectName)
}

func testAppendMessagesRequiresOwner(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	bob := createUser(t, s, "bob@example.com")
	p := createProject(t, s, alice.ID, "Research")
	c := &Chat{ProjectID: p.ID, OwnerID: alice.ID, Title: "Chat 1"}
	require.NoError(t, s.CreateChat(ctx, c))

	err := s.AppendMessages(ctx, bob.ID, c.ID, newMessage(RoleUser, "hi"))
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetChat(ctx, alice.ID, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func testSoftDeleteCascade(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	research := createProject(t, s, alice.ID, "Research")
	other := createProject(t, s, alice.ID, "Other")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateChat(ctx, &Chat{ProjectID: research.ID, OwnerID: alice.ID, Title: "c"}))
	}
	kept := &Chat{ProjectID: other.ID, OwnerID: alice.ID, Title: "keep"}
	require.NoError(t, s.CreateChat(ctx, kept))

	require.NoError(t, s.SoftDeleteProject(ctx, alice.ID, research.ID))
	n, err := s.SoftDeleteProjectChats(ctx, alice.ID, research.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = s.GetProject(ctx, alice.ID, research.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SoftDeleteProject(ctx, alice.ID, research.ID), ErrNotFound)

	list, total, err := s.ListChats(ctx, alice.ID, ChatQuery{Page: firstPage(20)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)

	require.NoError(t, s.SoftDeleteChat(ctx, alice.ID, kept.ID))
	_, err = s.GetChat(ctx, alice.ID, kept.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SoftDeleteChat(ctx, alice.ID, kept.ID), ErrNotFound)
}

func testListChatsOrderAndPaging(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	p := createProject(t, s, alice.ID, "Research")

	ids := []string{}
	for i := 0; i < 5; i++ {
		c := &Chat{ProjectID: p.ID, OwnerID: alice.ID, Title: fmt.Sprintf("c%d", i)}
		require.NoError(t, s.CreateChat(ctx, c))
		ids = append(ids, c.ID)
		time.Sleep(tick)
	}
	// touching the oldest chat moves it to the front
	require.NoError(t, s.AppendMessages(ctx, alice.ID, ids[0], newMessage(RoleUser, "bump")))

	list, total, err := s.ListChats(ctx, alice.ID, ChatQuery{Page: Page{Number: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, list, 2)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, ids[4], list[1].ID)

	list, _, err = s.ListChats(ctx, alice.ID, ChatQuery{Page: Page{Number: 3, Limit: 2}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[1], list[0].ID)
}

func testSearchFoldsUnicode(t *testing.T, s Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	p := createProject(t, s, alice.ID, "École Bot")
	createProject(t, s, alice.ID, "Support Bot")

	for _, search := range []string{"école", "ÉCOLE", "cole b"} {
		list, total, err := s.ListProjects(ctx, alice.ID, ProjectQuery{Search: search, Page: firstPage(10)})
		require.NoError(t, err)
		assert.Equal(t, 1, total, search)
		require.Len(t, list, 1, search)
		assert.Equal(t, p.ID, list[0].ID)
	}
}
