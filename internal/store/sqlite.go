package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
)

// sqliteDriver is go-sqlite3 with a Unicode-aware fold(text) function.
// SQLite's own LOWER only folds ASCII.
const sqliteDriver = "sqlite3_fold"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection keeps read-modify-write
	// transactions from tripping over "database is locked".
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE NOT NULL COLLATE NOCASE,
        password_hash TEXT NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS projects (
        id TEXT PRIMARY KEY, -- UUID
        owner_id TEXT NOT NULL,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        system_prompt TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'deleted')),
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (owner_id) REFERENCES users (id)
    );
    CREATE UNIQUE INDEX IF NOT EXISTS projects_owner_active_name
        ON projects (owner_id, name) WHERE status = 'active';
    CREATE INDEX IF NOT EXISTS projects_owner_updated ON projects (owner_id, updated_at);

    CREATE TABLE IF NOT EXISTS project_files (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        project_id TEXT NOT NULL,
        file_id TEXT NOT NULL,
        FOREIGN KEY (project_id) REFERENCES projects (id)
    );
    CREATE INDEX IF NOT EXISTS project_files_project ON project_files (project_id);

    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY, -- UUID
        project_id TEXT NOT NULL,
        owner_id TEXT NOT NULL,
        title TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'deleted')),
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (project_id) REFERENCES projects (id),
        FOREIGN KEY (owner_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS chats_owner_project_updated ON chats (owner_id, project_id, updated_at);

    CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        chat_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL CHECK (content <> ''),
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (chat_id) REFERENCES chats (id)
    );
    CREATE INDEX IF NOT EXISTS messages_chat ON messages (chat_id, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

// active is the only filter project and chat lookups are built on: owner
// match plus the active lifecycle. It binds one argument, the owner id.
func active(alias string) string {
	return alias + ".owner_id = ? AND " + alias + ".status = '" + string(Active) + "'"
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func now() time.Time {
	return time.Now().UTC()
}

// User methods
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.PasswordHash, u.Name, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email = ?", NormalizeEmail(email))
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, name, created_at, updated_at FROM users WHERE "+where, arg).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) UpdateUserName(ctx context.Context, id, name string) (*User, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET name = ?, updated_at = ? WHERE id = ?", name, now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

// Project methods
const projectColumns = "p.id, p.owner_id, p.name, p.description, p.system_prompt, p.status, p.created_at, p.updated_at"

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.SystemPrompt, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	p.FileIDs = []string{}
	return p, err
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = Active
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	if p.FileIDs == nil {
		p.FileIDs = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (id, owner_id, name, description, system_prompt, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.OwnerID, p.Name, p.Description, p.SystemPrompt, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ProjectNameTaken(ctx context.Context, ownerID, name, excludeID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM projects p WHERE "+active("p")+" AND p.name = ? AND p.id <> ?",
		ownerID, name, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check project name: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, ownerID, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects p WHERE p.id = ? AND "+active("p"), id, ownerID)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	projects := []Project{p}
	if err := s.loadFileIDs(ctx, projects); err != nil {
		return nil, err
	}
	return &projects[0], nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, ownerID string, q ProjectQuery) ([]Project, int, error) {
	where := active("p")
	args := []any{ownerID}
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		where += ` AND (fold(p.name) LIKE ? ESCAPE '\' OR fold(p.description) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects p WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects p WHERE "+where+" ORDER BY p.updated_at DESC, p.rowid DESC LIMIT ? OFFSET ?",
		append(args, q.Page.Limit, q.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate projects: %w", err)
	}

	if err := s.loadFileIDs(ctx, projects); err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

func (s *SQLiteStore) loadFileIDs(ctx context.Context, projects []Project) error {
	if len(projects) == 0 {
		return nil
	}
	index := make(map[string]int, len(projects))
	placeholders := make([]string, len(projects))
	args := make([]any, len(projects))
	for i, p := range projects {
		index[p.ID] = i
		placeholders[i] = "?"
		args[i] = p.ID
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT project_id, file_id FROM project_files WHERE project_id IN ("+strings.Join(placeholders, ",")+") ORDER BY seq ASC",
		args...)
	if err != nil {
		return fmt.Errorf("failed to query project files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, fileID string
		if err := rows.Scan(&projectID, &fileID); err != nil {
			return fmt.Errorf("failed to scan project file row: %w", err)
		}
		i := index[projectID]
		projects[i].FileIDs = append(projects[i].FileIDs, fileID)
	}
	return rows.Err()
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, ownerID, id string, patch ProjectPatch) (*Project, error) {
	setParts := []string{}
	args := []any{}
	if patch.Name != nil {
		setParts = append(setParts, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		setParts = append(setParts, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.SystemPrompt != nil {
		setParts = append(setParts, "system_prompt = ?")
		args = append(args, *patch.SystemPrompt)
	}
	setParts = append(setParts, "updated_at = ?")
	args = append(args, now(), id, ownerID)

	query := "UPDATE projects AS p SET " + strings.Join(setParts, ", ") + " WHERE p.id = ? AND " + active("p")
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetProject(ctx, ownerID, id)
}

func (s *SQLiteStore) SoftDeleteProject(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE projects AS p SET status = ?, updated_at = ? WHERE p.id = ? AND "+active("p"),
		Deleted, now(), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AddProjectFile(ctx context.Context, ownerID, projectID, fileID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE projects AS p SET updated_at = ? WHERE p.id = ? AND "+active("p"), now(), projectID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to touch project: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO project_files (project_id, file_id) VALUES (?, ?)", projectID, fileID); err != nil {
			return fmt.Errorf("failed to insert project file: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) RemoveProjectFile(ctx context.Context, ownerID, projectID, fileID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE projects AS p SET updated_at = ? WHERE p.id = ? AND "+active("p"), now(), projectID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to touch project: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		res, err = tx.ExecContext(ctx, "DELETE FROM project_files WHERE project_id = ? AND file_id = ?", projectID, fileID)
		if err != nil {
			return fmt.Errorf("failed to delete project file: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Chat methods
func (s *SQLiteStore) CreateChat(ctx context.Context, c *Chat) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = Active
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	c.Messages = []Message{}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (id, project_id, owner_id, title, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.ProjectID, c.OwnerID, c.Title, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute chat insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, ownerID, id string) (*Chat, error) {
	var chat Chat
	err := s.db.QueryRowContext(ctx,
		"SELECT c.id, c.project_id, c.owner_id, c.title, c.status, c.created_at, c.updated_at FROM chats c WHERE c.id = ? AND "+active("c"),
		id, ownerID).
		Scan(&chat.ID, &chat.ProjectID, &chat.OwnerID, &chat.Title, &chat.Status, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	chat.Messages, err = s.getMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *SQLiteStore) getMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, content, timestamp FROM messages WHERE chat_id = ? ORDER BY seq ASC", chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) ListChats(ctx context.Context, ownerID string, q ChatQuery) ([]ChatSummary, int, error) {
	where := active("c")
	args := []any{ownerID}
	if q.ProjectID != "" {
		where += " AND c.project_id = ?"
		args = append(args, q.ProjectID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chats c WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count chats: %w", err)
	}

	query := `
        SELECT c.id, c.title, c.project_id, COALESCE(p.name, ''),
               (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id),
               c.created_at, c.updated_at
        FROM chats c
        LEFT JOIN projects p ON p.id = c.project_id
        WHERE ` + where + `
        ORDER BY c.updated_at DESC, c.rowid DESC
        LIMIT ? OFFSET ?
    `
	rows, err := s.db.QueryContext(ctx, query, append(args, q.Page.Limit, q.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []ChatSummary{}
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.ProjectID, &c.ProjectName, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, total, rows.Err()
}

// AppendMessages adds msgs to the end of the chat in one transaction, so
// concurrent senders interleave whole exchanges rather than losing writes.
func (s *SQLiteStore) AppendMessages(ctx context.Context, ownerID, chatID string, msgs ...Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE chats AS c SET updated_at = ? WHERE c.id = ? AND "+active("c"), now(), chatID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to touch chat: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}

		stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages (id, chat_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare message insert: %w", err)
		}
		defer stmt.Close()

		for _, msg := range msgs {
			if _, err := stmt.ExecContext(ctx, msg.ID, chatID, msg.Role, msg.Content, msg.Timestamp); err != nil {
				return fmt.Errorf("failed to execute message insert: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SoftDeleteChat(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chats AS c SET status = ?, updated_at = ? WHERE c.id = ? AND "+active("c"),
		Deleted, now(), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SoftDeleteProjectChats(ctx context.Context, ownerID, projectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chats AS c SET status = ?, updated_at = ? WHERE c.project_id = ? AND "+active("c"),
		Deleted, now(), projectID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project chats: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
