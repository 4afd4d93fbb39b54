package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/rajyaabhishek/LawX-sub001/internal/media"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type ImageStoreMock struct {
	mock.Mock
}

func (m *ImageStoreMock) SaveImage(ctx context.Context, uploaderID, recipientID string, img media.Image) (string, error) {
	args := m.Called(ctx, uploaderID, recipientID, img)
	return args.String(0), args.Error(1)
}

func (m *ImageStoreMock) Open(ctx context.Context, fileID string) (io.ReadCloser, media.StoredFile, error) {
	args := m.Called(ctx, fileID)
	var rc io.ReadCloser
	if val := args.Get(0); val != nil {
		rc = val.(io.ReadCloser)
	}
	var file media.StoredFile
	if val := args.Get(1); val != nil {
		file = val.(media.StoredFile)
	}
	return rc, file, args.Error(2)
}

func (m *ImageStoreMock) Delete(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}
