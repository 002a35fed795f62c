package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// Analytic categories of HTTP-coded results.
const (
	CategoryActive              = "ACTIVE"
	CategoryPotentiallyActive   = "POTENTIALLY_ACTIVE"
	CategoryPotentiallyInactive = "POTENTIALLY_INACTIVE"
	CategorySuspicious          = "SUSPICIOUS"
)

// NotRetestedFile is the log of known inactive subjects skipped by a run.
const NotRetestedFile = "not_retested"

// AnalyticCategory sorts an HTTP status code. Codes outside every known
// family are suspicious.
func AnalyticCategory(code int) string {
	switch code {
	case 100, 101, 200, 201, 202, 203, 204, 205, 206:
		return CategoryActive
	case 300, 301, 302, 303, 304, 305, 307, 308, 403, 405, 406, 407, 408, 411, 413, 417, 500, 502, 503, 504:
		return CategoryPotentiallyActive
	case 400, 402, 404, 409, 410, 412, 414, 415, 416, 451:
		return CategoryPotentiallyInactive
	default:
		return CategorySuspicious
	}
}

// FileWriter appends results to the status files of a destination:
//
//	<output>/<destination>/hosts/<STATUS>/hosts
//	<output>/<destination>/domains/<STATUS>/list
//	<output>/<destination>/analytic/<CATEGORY>/list
//	<output>/<destination>/splitted/<STATUS>   (or results when unified)
//	<output>/<destination>/logs/not_retested
//
// Handles are opened on first use and kept until Close.
type FileWriter struct {
	hostsIP string
	unified bool

	mu     sync.Mutex
	files  map[string]*os.File
	closed bool
}

// FileWriterOption configures a FileWriter.
type FileWriterOption func(*FileWriter)

// WithHostsIP sets the address written in front of hosts entries.
func WithHostsIP(ip string) FileWriterOption {
	return func(w *FileWriter) {
		w.hostsIP = ip
	}
}

// WithUnified writes every result to a single results file instead of one
// file per status.
func WithUnified(unified bool) FileWriterOption {
	return func(w *FileWriter) {
		w.unified = unified
	}
}

// NewFileWriter creates a FileWriter.
func NewFileWriter(opts ...FileWriterOption) *FileWriter {
	w := &FileWriter{
		hostsIP: "0.0.0.0",
		files:   make(map[string]*os.File),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write appends a result to every status file of the request destination.
// Requests without a destination are skipped.
func (w *FileWriter) Write(req *model.TestRequest, result *model.TestResult) error {
	if req == nil || result == nil || req.Destination == "" {
		return nil
	}

	root := filepath.Join(req.OutputDir, req.Destination)
	status := upper.String(string(result.Status))

	hostsLine := result.IDNASubject
	if req.Subject.Kind == model.KindDomain {
		hostsLine = w.hostsIP + " " + result.IDNASubject
	}

	lines := []fileLine{
		{filepath.Join(root, "hosts", status, "hosts"), hostsLine},
		{filepath.Join(root, "domains", status, "list"), result.IDNASubject},
	}

	if result.HTTPStatusCode != 0 {
		category := AnalyticCategory(result.HTTPStatusCode)
		lines = append(lines, fileLine{filepath.Join(root, "analytic", category, "list"), result.IDNASubject})
	}

	full := fmt.Sprintf("%s %s %s %s %s %s",
		pad(result.IDNASubject, widthSubject),
		pad(status, widthStatus),
		pad(result.StatusSource, widthSource),
		pad(expiration(result), widthExpiration),
		pad(httpCode(result), widthHTTPCode),
		result.TestedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if w.unified {
		lines = append(lines, fileLine{filepath.Join(root, "results"), full})
	} else {
		lines = append(lines, fileLine{filepath.Join(root, "splitted", status), full})
	}

	for _, l := range lines {
		if err := w.appendLine(l.path, l.line); err != nil {
			return err
		}
	}
	return nil
}

type fileLine struct {
	path string
	line string
}

// WriteNotRetested logs a known inactive subject that was skipped.
func (w *FileWriter) WriteNotRetested(req *model.TestRequest) error {
	if req == nil || req.Destination == "" {
		return nil
	}
	path := filepath.Join(req.OutputDir, req.Destination, "logs", NotRetestedFile)
	return w.appendLine(path, req.Subject.IDNA)
}

func (w *FileWriter) appendLine(path, line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	f, ok := w.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is built from the output directory
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		w.files[path] = f
	}

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Close closes every open file. Calling it again is a no-op.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, f := range w.files {
		errs = append(errs, f.Close())
	}
	w.files = nil
	return errors.Join(errs...)
}
