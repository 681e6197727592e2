package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore keeps users, projects and chats as documents. Messages and file
// ids are embedded arrays grown with $push, which is atomic per document.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	projects *mongo.Collection
	chats    *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		users:    db.Collection("users"),
		projects: db.Collection("projects"),
		chats:    db.Collection("chats"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.projects.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "status", Value: string(Active)}}),
		},
	}); err != nil {
		return err
	}
	_, err := s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "project_id", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	return err
}

// mongoNow matches the millisecond precision of BSON dates so values handed
// back to callers equal what a later read returns.
func mongoNow() time.Time {
	return now().Truncate(time.Millisecond)
}

// activeDoc is the only filter project and chat lookups are built on.
func activeDoc(ownerID string, extra ...bson.E) bson.D {
	filter := bson.D{{Key: "owner_id", Value: ownerID}, {Key: "status", Value: string(Active)}}
	return append(filter, extra...)
}

func mapMongoErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// User methods
func (s *MongoStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt = mongoNow()
	u.UpdatedAt = u.CreatedAt

	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: NormalizeEmail(email)}})
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.findUser(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.D) (*User, error) {
	var user User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) UpdateUserName(ctx context.Context, id, name string) (*User, error) {
	var user User
	err := s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: name}, {Key: "updated_at", Value: mongoNow()}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// Project methods
func (s *MongoStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = Active
	p.CreatedAt = mongoNow()
	p.UpdatedAt = p.CreatedAt
	if p.FileIDs == nil {
		p.FileIDs = []string{}
	}

	if _, err := s.projects.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (s *MongoStore) ProjectNameTaken(ctx context.Context, ownerID, name, excludeID string) (bool, error) {
	n, err := s.projects.CountDocuments(ctx, activeDoc(ownerID,
		bson.E{Key: "name", Value: name},
		bson.E{Key: "_id", Value: bson.D{{Key: "$ne", Value: excludeID}}},
	))
	if err != nil {
		return false, fmt.Errorf("failed to check project name: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) GetProject(ctx context.Context, ownerID, id string) (*Project, error) {
	var p Project
	if err := s.projects.FindOne(ctx, activeDoc(ownerID, bson.E{Key: "_id", Value: id})).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if p.FileIDs == nil {
		p.FileIDs = []string{}
	}
	return &p, nil
}

func (s *MongoStore) ListProjects(ctx context.Context, ownerID string, q ProjectQuery) ([]Project, int, error) {
	filter := activeDoc(ownerID)
	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := bson.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "name", Value: pattern}},
			bson.D{{Key: "description", Value: pattern}},
		}})
	}

	total, err := s.projects.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	cursor, err := s.projects.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Page.Offset())).
		SetLimit(int64(q.Page.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query projects: %w", err)
	}

	projects := []Project{}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, 0, fmt.Errorf("failed to decode projects: %w", err)
	}
	for i := range projects {
		if projects[i].FileIDs == nil {
			projects[i].FileIDs = []string{}
		}
	}
	return projects, int(total), nil
}

func (s *MongoStore) UpdateProject(ctx context.Context, ownerID, id string, patch ProjectPatch) (*Project, error) {
	set := bson.D{{Key: "updated_at", Value: mongoNow()}}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.SystemPrompt != nil {
		set = append(set, bson.E{Key: "system_prompt", Value: *patch.SystemPrompt})
	}

	var p Project
	err := s.projects.FindOneAndUpdate(ctx,
		activeDoc(ownerID, bson.E{Key: "_id", Value: id}),
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		if mapped := mapMongoErr(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if p.FileIDs == nil {
		p.FileIDs = []string{}
	}
	return &p, nil
}

func (s *MongoStore) SoftDeleteProject(ctx context.Context, ownerID, id string) error {
	return s.updateOne(ctx, s.projects, activeDoc(ownerID, bson.E{Key: "_id", Value: id}),
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(Deleted)}, {Key: "updated_at", Value: mongoNow()}}}})
}

func (s *MongoStore) AddProjectFile(ctx context.Context, ownerID, projectID, fileID string) error {
	return s.updateOne(ctx, s.projects, activeDoc(ownerID, bson.E{Key: "_id", Value: projectID}),
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "file_ids", Value: fileID}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: mongoNow()}}},
		})
}

func (s *MongoStore) RemoveProjectFile(ctx context.Context, ownerID, projectID, fileID string) error {
	return s.updateOne(ctx, s.projects,
		activeDoc(ownerID, bson.E{Key: "_id", Value: projectID}, bson.E{Key: "file_ids", Value: fileID}),
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: "file_ids", Value: fileID}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: mongoNow()}}},
		})
}

// Chat methods
func (s *MongoStore) CreateChat(ctx context.Context, c *Chat) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = Active
	c.CreatedAt = mongoNow()
	c.UpdatedAt = c.CreatedAt
	c.Messages = []Message{}

	if _, err := s.chats.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to insert chat: %w", err)
	}
	return nil
}

func (s *MongoStore) GetChat(ctx context.Context, ownerID, id string) (*Chat, error) {
	var c Chat
	if err := s.chats.FindOne(ctx, activeDoc(ownerID, bson.E{Key: "_id", Value: id})).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c, nil
}

type chatListRow struct {
	ID           string    `bson:"_id"`
	Title        string    `bson:"title"`
	ProjectID    string    `bson:"project_id"`
	MessageCount int       `bson:"message_count"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (s *MongoStore) ListChats(ctx context.Context, ownerID string, q ChatQuery) ([]ChatSummary, int, error) {
	filter := activeDoc(ownerID)
	if q.ProjectID != "" {
		filter = append(filter, bson.E{Key: "project_id", Value: q.ProjectID})
	}

	total, err := s.chats.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count chats: %w", err)
	}

	cursor, err := s.chats.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$skip", Value: int64(q.Page.Offset())}},
		{{Key: "$limit", Value: int64(q.Page.Limit)}},
		{{Key: "$project", Value: bson.D{
			{Key: "title", Value: 1},
			{Key: "project_id", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "updated_at", Value: 1},
			{Key: "message_count", Value: bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$messages", bson.A{}}}}}}},
		}}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query chats: %w", err)
	}

	var rows []chatListRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, 0, fmt.Errorf("failed to decode chats: %w", err)
	}

	names, err := s.projectNames(ctx, rows)
	if err != nil {
		return nil, 0, err
	}

	chats := make([]ChatSummary, 0, len(rows))
	for _, r := range rows {
		chats = append(chats, ChatSummary{
			ID:           r.ID,
			Title:        r.Title,
			ProjectID:    r.ProjectID,
			ProjectName:  names[r.ProjectID],
			MessageCount: r.MessageCount,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		})
	}
	return chats, int(total), nil
}

func (s *MongoStore) projectNames(ctx context.Context, rows []chatListRow) (map[string]string, error) {
	names := map[string]string{}
	if len(rows) == 0 {
		return names, nil
	}
	ids := bson.A{}
	for _, r := range rows {
		ids = append(ids, r.ProjectID)
	}

	cursor, err := s.projects.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}},
		options.Find().SetProjection(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query project names: %w", err)
	}
	var projects []struct {
		ID   string `bson:"_id"`
		Name string `bson:"name"`
	}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode project names: %w", err)
	}
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}

func (s *MongoStore) AppendMessages(ctx context.Context, ownerID, chatID string, msgs ...Message) error {
	return s.updateOne(ctx, s.chats, activeDoc(ownerID, bson.E{Key: "_id", Value: chatID}),
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "messages", Value: bson.D{{Key: "$each", Value: msgs}}}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: mongoNow()}}},
		})
}

func (s *MongoStore) SoftDeleteChat(ctx context.Context, ownerID, id string) error {
	return s.updateOne(ctx, s.chats, activeDoc(ownerID, bson.E{Key: "_id", Value: id}),
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(Deleted)}, {Key: "updated_at", Value: mongoNow()}}}})
}

func (s *MongoStore) SoftDeleteProjectChats(ctx context.Context, ownerID, projectID string) (int64, error) {
	res, err := s.chats.UpdateMany(ctx, activeDoc(ownerID, bson.E{Key: "project_id", Value: projectID}),
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(Deleted)}, {Key: "updated_at", Value: mongoNow()}}}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete project chats: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) updateOne(ctx context.Context, coll *mongo.Collection, filter, update bson.D) error {
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		if mapped := mapMongoErr(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update %s: %w", coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
