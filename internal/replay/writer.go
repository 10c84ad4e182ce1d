package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// LogWriter appends synthetic events to the output log as JSON lines.
// Safe for concurrent use by the per-instrument workers.
type LogWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// NewLogWriter creates (or truncates) the synthetic log at path, creating
// parent directories as needed.
func NewLogWriter(path string) (*LogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open synthetic log: %w", err)
	}
	return &LogWriter{file: file, w: bufio.NewWriter(file)}, nil
}

// Append writes one event.
func (l *LogWriter) Append(ev models.SyntheticEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode synthetic event: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write synthetic event: %w", err)
	}
	return nil
}

// Flush forces buffered events to disk.
func (l *LogWriter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Flush()
}

// Close flushes and closes the log.
func (l *LogWriter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
