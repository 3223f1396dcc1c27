package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"mediamigrate/internal/core/domain"
)

// FileErrorSink implements ports.ErrorSink as a JSON file next to the
// checkpoint.
type FileErrorSink struct {
	path string
}

// NewFileErrorSink creates a FileErrorSink at path.
func NewFileErrorSink(path string) *FileErrorSink {
	return &FileErrorSink{path: path}
}

// Flush writes the records. An empty list writes nothing, leaving any
// previous report untouched.
func (s *FileErrorSink) Flush(ctx context.Context, records []domain.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal error report: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write error report %s: %w", s.path, err)
	}
	return nil
}
