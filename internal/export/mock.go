package export

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MockDriveUploader is a mock implementation of DriveUploader for testing.
type MockDriveUploader struct {
	UploadFunc  func(ctx context.Context, name, folderID string, content []byte) (string, error)
	UploadCalls []UploadCall
	mu          sync.Mutex
}

// UploadCall represents a single call to Upload.
type UploadCall struct {
	Error    error
	Name     string
	FolderID string
	FileID   string
	Content  []byte
}

// NewMockDriveUploader creates a new mock uploader.
func NewMockDriveUploader() *MockDriveUploader {
	return &MockDriveUploader{
		UploadCalls: make([]UploadCall, 0),
	}
}

// Upload implements the DriveUploader interface. It reads content fully and
// returns a file ID derived from the call count unless UploadFunc is set.
func (m *MockDriveUploader) Upload(ctx context.Context, name, folderID string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fileID := fmt.Sprintf("file-%d", len(m.UploadCalls)+1)
	if m.UploadFunc != nil {
		fileID, err = m.UploadFunc(ctx, name, folderID, data)
	}

	m.UploadCalls = append(m.UploadCalls, UploadCall{
		Name:     name,
		FolderID: folderID,
		FileID:   fileID,
		Content:  data,
		Error:    err,
	})

	return fileID, err
}

// GetUploadCalls returns a copy of all upload calls.
func (m *MockDriveUploader) GetUploadCalls() []UploadCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]UploadCall, len(m.UploadCalls))
	copy(calls, m.UploadCalls)
	return calls
}

// SetUploadError configures the mock to fail every upload with err.
func (m *MockDriveUploader) SetUploadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UploadFunc = func(_ context.Context, _, _ string, _ []byte) (string, error) {
		return "", err
	}
}
