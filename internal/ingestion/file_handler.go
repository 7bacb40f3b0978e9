package ingestion

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// unsafeSenderChars matches characters replaced when a sender address becomes part of a filename
var unsafeSenderChars = regexp.MustCompile(`[<>:@/\\"|?*\s]`)

// FileHandler stores fetched attachments on disk, one file per candidate document
type FileHandler struct {
	resumesDir string
}

// NewFileHandler creates a new file handler
func NewFileHandler(resumesDir string) *FileHandler {
	return &FileHandler{
		resumesDir: resumesDir,
	}
}

// Dir returns the directory documents are stored in
func (fh *FileHandler) Dir() string {
	return fh.resumesDir
}

// DocumentName builds the stored filename for a sender's attachment
func DocumentName(sender, filename string) string {
	return fmt.Sprintf("%s_%s", unsafeSenderChars.ReplaceAllString(sender, "_"), filepath.Base(filename))
}

// SaveDocument writes an attachment for the given sender and returns its path
func (fh *FileHandler) SaveDocument(sender, filename string, data []byte) (string, error) {
	return fh.SaveUploadedFile(DocumentName(sender, filename), bytes.NewReader(data))
}

// SaveUploadedFile saves content under the resumes directory
func (fh *FileHandler) SaveUploadedFile(filename string, content io.Reader) (string, error) {
	if err := os.MkdirAll(fh.resumesDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create resumes directory: %w", err)
	}

	filePath := filepath.Join(fh.resumesDir, filepath.Base(filename))
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filePath, nil
}

// Open reads a stored document's bytes
func (fh *FileHandler) Open(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return data, nil
}

// ClearUploads removes all stored documents
func (fh *FileHandler) ClearUploads() error {
	if err := os.RemoveAll(fh.resumesDir); err != nil {
		return fmt.Errorf("failed to clear resumes directory: %w", err)
	}
	return os.MkdirAll(fh.resumesDir, 0755)
}
