package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"overdose-pipeline/pkg/logging"
)

// Supported output formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Table is one computed chart table handed to the renderer
type Table struct {
	Name        string
	Title       string
	Source      string
	RunID       string
	GeneratedAt time.Time
	Rows        interface{} // slice of structs
	RowCount    int
}

// Envelope is the JSON document written for a chart
type Envelope struct {
	Chart       string      `json:"chart"`
	Title       string      `json:"title"`
	Source      string      `json:"source"`
	RunID       string      `json:"run_id,omitempty"`
	GeneratedAt string      `json:"generated_at"`
	RowCount    int         `json:"row_count"`
	Rows        interface{} `json:"rows"`
}

// Writer writes chart tables into an output directory
type Writer struct {
	dir     string
	formats []string
	logger  *logging.StructuredLogger
}

// ParseFormats validates a list of output formats, removing duplicates
func ParseFormats(formats []string) ([]string, error) {
	seen := make(map[string]bool)
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		if f != FormatJSON && f != FormatCSV {
			return nil, fmt.Errorf("unsupported output format %q", f)
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one output format is required")
	}
	return out, nil
}

// NewWriter creates a writer for the given directory and formats
func NewWriter(dir string, formats []string, logger *logging.StructuredLogger) (*Writer, error) {
	parsed, err := ParseFormats(formats)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{dir: dir, formats: parsed, logger: logger}, nil
}

// Write renders the table in every configured format and returns the file paths
func (w *Writer) Write(ctx context.Context, t *Table) ([]string, error) {
	paths := make([]string, 0, len(w.formats))
	for _, format := range w.formats {
		var (
			data []byte
			err  error
		)
		switch format {
		case FormatJSON:
			data, err = encodeJSON(t)
		case FormatCSV:
			data, err = csvutil.Marshal(t.Rows)
		}
		if err != nil {
			return paths, fmt.Errorf("failed to encode %s as %s: %w", t.Name, format, err)
		}

		path := filepath.Join(w.dir, t.Name+"."+format)
		if err := writeFileAtomic(path, data); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	w.logger.Debug(ctx, "[EXPORT_WRITE] Chart table written", logging.Fields{
		"chart": t.Name,
		"rows":  t.RowCount,
		"files": paths,
	})
	return paths, nil
}

func encodeJSON(t *Table) ([]byte, error) {
	env := Envelope{
		Chart:       t.Name,
		Title:       t.Title,
		Source:      t.Source,
		RunID:       t.RunID,
		GeneratedAt: t.GeneratedAt.UTC().Format(time.RFC3339),
		RowCount:    t.RowCount,
		Rows:        t.Rows,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeFileAtomic writes to a temporary file in the same directory and
// renames it over path
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
