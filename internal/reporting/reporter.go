// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// Reporter renders finished scans to an output.
type Reporter interface {
	// Write renders one scan.
	Write(scan store.StoredScan) error
	// Close flushes and closes the underlying output.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath, or stdout when
// outputPath is empty or "stdout".
func New(format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case config.FormatJSON, config.FormatMarkdown:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := config.ExpandPath(outputPath)
		if err != nil {
			return nil, err
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer, toolVersion)
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser, toolVersion string) (Reporter, error) {
	switch format {
	case config.FormatJSON:
		return NewJSONReporter(writer, toolVersion), nil
	case config.FormatMarkdown:
		return NewMarkdownReporter(writer, toolVersion), nil
	default:
		_ = writer.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
