package preload

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/funilrys/PyFunceble-sub002/internal/convert"
	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/filter"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// DescriptionFile is the name of the progress file kept per destination.
const DescriptionFile = "preload.json"

// DefaultFlushEvery is how many lines are read between two description saves.
const DefaultFlushEvery = 1000

// Input names the file to preload and how its subjects are tested.
type Input struct {
	// Path is the input file. It is also the source of every seeded row.
	Path string

	Destination string
	OutputDir   string
	CheckerType model.CheckerType
	SubjectType model.SubjectType
}

// Stats summarizes one preload pass.
type Stats struct {
	// Lines is the number of lines read during this pass.
	Lines int
	// Seeded is the number of subjects written to the continue dataset.
	Seeded int
	// Inactive is the number of subjects skipped as known inactive.
	Inactive int
	// Ignored is the number of subjects matching an ignore rule.
	Ignored int
	// Rejected is the number of subjects longer than model.MaxSubjectLength.
	Rejected int
	// Skipped is set when the file was already fully read with this content.
	Skipped bool
	// Aborted is set when the time budget ran out mid-file.
	Aborted bool
}

// Preloader seeds the continue dataset from an input file, resuming where
// the previous pass stopped when the file content did not change.
type Preloader struct {
	continueDS *dataset.ContinueDataset
	inactiveDS *dataset.InactiveDataset

	converter    convert.Converter
	filter       *filter.Filter
	progress     *output.Progress
	timeExceeded func() bool
	flushEvery   int
	newSessionID func() string
	logger       *slog.Logger
}

// Option configures a Preloader.
type Option func(*Preloader)

// WithConverter sets the line-to-subjects converter. Default: convert.Plain.
func WithConverter(c convert.Converter) Option {
	return func(p *Preloader) {
		p.converter = c
	}
}

// WithFilter sets the ignore rules.
func WithFilter(f *filter.Filter) Option {
	return func(p *Preloader) {
		p.filter = f
	}
}

// WithProgress sets where markers are printed.
func WithProgress(progress *output.Progress) Option {
	return func(p *Preloader) {
		p.progress = progress
	}
}

// WithTimeExceeded sets the time budget predicate polled between lines.
func WithTimeExceeded(fn func() bool) Option {
	return func(p *Preloader) {
		p.timeExceeded = fn
	}
}

// WithFlushEvery sets how many lines are read between description saves.
func WithFlushEvery(n int) Option {
	return func(p *Preloader) {
		if n > 0 {
			p.flushEvery = n
		}
	}
}

// WithSessionIDGenerator replaces the session id generator.
func WithSessionIDGenerator(fn func() string) Option {
	return func(p *Preloader) {
		p.newSessionID = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Preloader) {
		p.logger = logger
	}
}

// New creates a Preloader.
func New(continueDS *dataset.ContinueDataset, inactiveDS *dataset.InactiveDataset, opts ...Option) *Preloader {
	p := &Preloader{
		continueDS:   continueDS,
		inactiveDS:   inactiveDS,
		converter:    convert.Plain{},
		filter:       filter.New(),
		timeExceeded: func() bool { return false },
		flushEvery:   DefaultFlushEvery,
		newSessionID: uuid.NewString,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DescriptionPath returns where the description of a destination is kept.
func DescriptionPath(outputDir, destination string) string {
	return filepath.Join(outputDir, destination, DescriptionFile)
}

// Run reads the input file and seeds the continue dataset. It returns the
// description of the pass, whose SessionID identifies the seeded rows.
//
// On context cancellation the description is saved before the error is
// returned, so the next pass resumes after the last completed line.
func (p *Preloader) Run(ctx context.Context, in Input) (*model.PreloadDescription, Stats, error) {
	var stats Stats
	descPath := DescriptionPath(in.OutputDir, in.Destination)

	desc, err := p.loadDescription(descPath, in)
	if err != nil {
		return nil, stats, err
	}

	hash, err := HashFile(in.Path)
	if err != nil {
		return nil, stats, err
	}

	if desc.CheckerType != in.CheckerType || desc.SubjectType != in.SubjectType || desc.Subject != in.Path {
		removed, err := p.continueDS.CleanupSource(ctx, in.Path)
		if err != nil {
			return nil, stats, fmt.Errorf("failed to reset continue dataset: %w", err)
		}
		p.logger.Info("test parameters changed, restarting preload",
			"file", in.Path,
			"checker_type", in.CheckerType,
			"subject_type", in.SubjectType,
			"removed", removed,
		)
		desc.LineNumber = 1
		desc.PreviousHash = ""
	}

	// Hash is the content the saved line number points into.
	changed := desc.Hash != "" && desc.Hash != hash
	if changed {
		// No way to tell which lines changed.
		desc.LineNumber = 1
	}
	desc.Hash = hash
	desc.CheckerType = in.CheckerType
	desc.SubjectType = in.SubjectType
	desc.Subject = in.Path
	desc.Destination = in.Destination
	desc.OutputDir = in.OutputDir

	if desc.LineNumber < 1 {
		desc.LineNumber = 1
	}
	stats.Skipped = !changed && desc.PreviousHash == desc.Hash

	if err := p.readFile(ctx, in, desc, descPath, &stats); err != nil {
		return desc, stats, err
	}

	if !stats.Aborted {
		desc.PreviousHash = desc.Hash
	}
	if err := saveDescription(descPath, desc); err != nil {
		return desc, stats, err
	}

	p.logger.Info("preload finished",
		"file", in.Path,
		"lines", stats.Lines,
		"seeded", stats.Seeded,
		"inactive", stats.Inactive,
		"ignored", stats.Ignored,
		"rejected", stats.Rejected,
		"skipped", stats.Skipped,
		"aborted", stats.Aborted,
	)
	return desc, stats, nil
}

func (p *Preloader) readFile(ctx context.Context, in Input, desc *model.PreloadDescription, descPath string, stats *Stats) error {
	f, err := os.Open(in.Path)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		if lineNumber < desc.LineNumber {
			continue
		}

		if err := ctx.Err(); err != nil {
			if serr := saveDescription(descPath, desc); serr != nil {
				return errors.Join(err, serr)
			}
			return err
		}
		if p.timeExceeded() {
			stats.Aborted = true
			return nil
		}

		if err := p.processLine(ctx, in, desc.SessionID, scanner.Text(), stats); err != nil {
			if serr := saveDescription(descPath, desc); serr != nil {
				return errors.Join(err, serr)
			}
			return err
		}

		desc.LineNumber = lineNumber + 1
		stats.Lines++

		if stats.Lines%p.flushEvery == 0 {
			if err := saveDescription(descPath, desc); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	return nil
}

func (p *Preloader) processLine(ctx context.Context, in Input, sessionID, line string, stats *Stats) error {
	for _, raw := range p.converter.Convert(line) {
		subject, err := model.NewSubject(raw)
		if errors.Is(err, model.ErrSubjectTooLong) {
			stats.Rejected++
			p.logger.Warn("subject skipped", "file", in.Path, "error", err)
			continue
		}
		if err != nil {
			continue
		}

		if p.filter.Ignored(subject) {
			stats.Ignored++
			p.progress.Mark(output.MarkIgnored)
			continue
		}

		inactive, err := p.inactiveDS.Contains(ctx, subject.IDNA, in.CheckerType, in.Path)
		if err != nil {
			return fmt.Errorf("failed to read inactive dataset: %w", err)
		}
		if inactive {
			stats.Inactive++
			p.progress.Mark(output.MarkInactive)
			continue
		}

		if err := p.continueDS.Seed(ctx, sessionID, subject, in.CheckerType, in.Path); err != nil {
			return fmt.Errorf("failed to seed continue dataset: %w", err)
		}
		stats.Seeded++
	}
	return nil
}

// loadDescription reads the description of a destination, or starts a new
// one with a fresh session id.
func (p *Preloader) loadDescription(path string, in Input) (*model.PreloadDescription, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the output directory
	if errors.Is(err, os.ErrNotExist) {
		return &model.PreloadDescription{
			LineNumber:  1,
			CheckerType: in.CheckerType,
			SubjectType: in.SubjectType,
			Subject:     in.Path,
			SessionID:   p.newSessionID(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preload description: %w", err)
	}

	var desc model.PreloadDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		p.logger.Warn("discarding unreadable preload description", "path", path, "error", err)
		return &model.PreloadDescription{
			LineNumber:  1,
			CheckerType: in.CheckerType,
			SubjectType: in.SubjectType,
			Subject:     in.Path,
			SessionID:   p.newSessionID(),
		}, nil
	}
	if desc.SessionID == "" {
		desc.SessionID = p.newSessionID()
	}
	return &desc, nil
}

// LoadDescription reads a saved description.
func LoadDescription(path string) (*model.PreloadDescription, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the output directory
	if err != nil {
		return nil, err
	}
	var desc model.PreloadDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse preload description: %w", err)
	}
	return &desc, nil
}

// saveDescription writes the description atomically.
func saveDescription(path string, desc *model.PreloadDescription) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preload description: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preload description: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write preload description: %w", err)
	}
	return nil
}

// RemoveDescription deletes the description of a destination. A missing
// file is not an error.
func RemoveDescription(outputDir, destination string) error {
	err := os.Remove(DescriptionPath(outputDir, destination))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove preload description: %w", err)
	}
	return nil
}

// HashFile returns the hex SHA3-512 digest of a file, read as a stream.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return "", fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	h := sha3.New512()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash input file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
