package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// URLPrefix is the authenticated path under which stored images are served.
const URLPrefix = "/api/v1/media/"

var ErrImageNotFound = errors.New("image not found")

// StoredFile describes an image as read back from the bucket.
type StoredFile struct {
	ID         string
	MIMEType   string
	Size       int64
	UploadedBy string
	SharedWith []string
	UploadedAt time.Time
}

// VisibleTo reports whether userID sent or received the image.
func (f StoredFile) VisibleTo(userID string) bool {
	if userID == "" {
		return false
	}
	if f.UploadedBy == userID {
		return true
	}
	for _, id := range f.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// GridFSStore keeps chat images in a GridFS bucket. The v1 bucket API takes
// no per-call context.
type GridFSStore struct {
	bucket *gridfs.Bucket
}

func NewGridFSStore(bucket *gridfs.Bucket) *GridFSStore {
	return &GridFSStore{bucket: bucket}
}

// SaveImage uploads img under a random id and returns the URL it is served
// under. Only the uploader and recipientID may read it back.
func (s *GridFSStore) SaveImage(ctx context.Context, uploaderID, recipientID string, img Image) (string, error) {
	metadata := bson.M{
		"mime_type":   img.MIMEType,
		"uploaded_by": uploaderID,
		"shared_with": []string{recipientID},
		"uploaded_at": time.Now(),
	}
	id := uuid.NewString()
	err := s.bucket.UploadFromStreamWithID(id, id+img.Extension, bytes.NewReader(img.Data), options.GridFSUpload().SetMetadata(metadata))
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return URLPrefix + id, nil
}

// Open streams a stored image. The caller closes the reader.
func (s *GridFSStore) Open(ctx context.Context, fileID string) (io.ReadCloser, StoredFile, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, StoredFile{}, ErrImageNotFound
	}

	stream, err := s.bucket.OpenDownloadStream(fileID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, StoredFile{}, ErrImageNotFound
	}
	if err != nil {
		return nil, StoredFile{}, fmt.Errorf("open image: %w", err)
	}

	file := stream.GetFile()
	var metadata struct {
		MIMEType   string `bson:"mime_type"`
		UploadedBy string   `bson:"uploaded_by"`
		SharedWith []string `bson:"shared_with"`
	}
	if file.Metadata != nil {
		_ = bson.Unmarshal(file.Metadata, &metadata)
	}
	if metadata.MIMEType == "" {
		metadata.MIMEType = "application/octet-stream"
	}

	return stream, StoredFile{
		ID:         fileID,
		MIMEType:   metadata.MIMEType,
		Size:       file.Length,
		UploadedBy: metadata.UploadedBy,
		SharedWith: metadata.SharedWith,
		UploadedAt: file.UploadDate,
	}, nil
}

// Delete removes an image by its served URL, either to roll back an upload
// whose message could not be stored or when the message is purged.
func (s *GridFSStore) Delete(ctx context.Context, url string) error {
	fileID := strings.TrimPrefix(url, URLPrefix)
	if _, err := uuid.Parse(fileID); err != nil {
		return ErrImageNotFound
	}
	if err := s.bucket.Delete(fileID); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return ErrImageNotFound
		}
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
