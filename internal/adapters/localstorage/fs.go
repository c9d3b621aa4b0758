package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	inputFile = "input.json"
	itemsFile = "items_raw.json"
)

// LocalStorage implements ports.Archive on the local filesystem.
// Each job gets <BaseDir>/jobs/<jobID>/ with the launch payload and the raw dataset.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// InitJob creates the job directory.
func (s *LocalStorage) InitJob(ctx context.Context, jobID string) error {
	if err := validJobID(jobID); err != nil {
		return err
	}
	path := s.GetJobPath(jobID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create job directory %s: %w", path, err)
	}
	return nil
}

// SaveInput saves the actor input sent for the job.
func (s *LocalStorage) SaveInput(ctx context.Context, jobID string, data []byte) error {
	return s.write(ctx, jobID, inputFile, data)
}

// SaveItems saves the job's dataset exactly as received.
func (s *LocalStorage) SaveItems(ctx context.Context, jobID string, data []byte) error {
	return s.write(ctx, jobID, itemsFile, data)
}

// GetJobPath returns the path for a job directory.
func (s *LocalStorage) GetJobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "jobs", jobID)
}

func (s *LocalStorage) write(ctx context.Context, jobID, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validJobID(jobID); err != nil {
		return err
	}

	path := filepath.Join(s.GetJobPath(jobID), name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// validJobID rejects ids that would escape the jobs directory.
func validJobID(jobID string) error {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return fmt.Errorf("invalid job id %q", jobID)
	}
	return nil
}
