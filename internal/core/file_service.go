package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gwi.com/chattyagent/internal/filestore"
	"gwi.com/chattyagent/internal/store"
)

// MaxFileSize is the largest upload accepted.
const MaxFileSize = 10 << 20

const metadataFetchConcurrency = 4

var allowedFileTypes = map[string]bool{
	"text/plain":         true,
	"text/csv":           true,
	"application/json":   true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// FileBackend is an external file-storage service. Ids it returns are opaque.
type FileBackend interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (*filestore.File, error)
	Get(ctx context.Context, id string) (*filestore.File, error)
	Delete(ctx context.Context, id string) error
}

type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type FileService struct {
	store   store.Store
	backend FileBackend
	logger  *zap.Logger
}

// NewFileService builds the relay. A nil backend means file storage is not
// configured: uploads fail and listings are empty.
func NewFileService(s store.Store, backend FileBackend, logger *zap.Logger) *FileService {
	return &FileService{store: s, backend: backend, logger: logger}
}

func (s *FileService) project(ctx context.Context, ownerID, projectID string) (*store.Project, error) {
	project, err := s.store.GetProject(ctx, ownerID, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

func checkUpload(u FileUpload) error {
	if u.Size > MaxFileSize {
		return ErrFileTooLarge
	}
	mediaType, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil || !allowedFileTypes[mediaType] {
		return ErrUnsupportedFileType
	}
	return nil
}

func (s *FileService) Upload(ctx context.Context, ownerID, projectID string, u FileUpload) (*filestore.File, error) {
	if err := checkUpload(u); err != nil {
		return nil, err
	}
	if _, err := s.project(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	if s.backend == nil {
		return nil, ErrFileStorageDisabled
	}

	file, err := s.backend.Upload(ctx, u.Filename, u.ContentType, u.Body, u.Size)
	if err != nil {
		s.logger.Error("File upload failed", zap.String("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if err := s.store.AddProjectFile(ctx, ownerID, projectID, file.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to attach file to project: %w", err)
	}
	return file, nil
}

// List fetches metadata for every file of the project. Files the backend
// cannot describe are logged and left out.
func (s *FileService) List(ctx context.Context, ownerID, projectID string) ([]filestore.File, error) {
	project, err := s.project(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if s.backend == nil || len(project.FileIDs) == 0 {
		return []filestore.File{}, nil
	}

	results := make([]*filestore.File, len(project.FileIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataFetchConcurrency)
	for i, id := range project.FileIDs {
		g.Go(func() error {
			file, err := s.backend.Get(gctx, id)
			if err != nil {
				s.logger.Warn("Failed to fetch file metadata", zap.String("file_id", id), zap.Error(err))
				return nil
			}
			results[i] = file
			return nil
		})
	}
	_ = g.Wait()

	files := make([]filestore.File, 0, len(results))
	for _, f := range results {
		if f != nil {
			files = append(files, *f)
		}
	}
	return files, nil
}

// Delete removes fileID from the project. The remote delete is best effort.
func (s *FileService) Delete(ctx context.Context, ownerID, projectID, fileID string) error {
	project, err := s.project(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if !slices.Contains(project.FileIDs, fileID) {
		return ErrFileNotFound
	}

	if s.backend != nil {
		if err := s.backend.Delete(ctx, fileID); err != nil {
			s.logger.Warn("Failed to delete file from storage", zap.String("file_id", fileID), zap.Error(err))
		}
	}

	if err := s.store.RemoveProjectFile(ctx, ownerID, projectID, fileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to detach file from project: %w", err)
	}
	return nil
}
