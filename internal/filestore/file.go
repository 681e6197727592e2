package filestore

import (
	"errors"
	"time"
)

// Purpose tags every file this service uploads.
const Purpose = "assistants"

var ErrNotFound = errors.New("file not found")

// File is the metadata a backend reports for a stored file.
type File struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"createdAt"`
	Purpose   string    `json:"purpose"`
}
