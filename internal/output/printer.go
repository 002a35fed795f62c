package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mode selects the stdout rendering.
type Mode int

const (
	// ModeDefault prints fixed-width columns with a header.
	ModeDefault Mode = iota
	// ModeSimple prints "subject status" lines.
	ModeSimple
	// ModeQuiet prints nothing.
	ModeQuiet
)

// column widths of the default table.
const (
	widthSubject    = 60
	widthStatus     = 11
	widthSource     = 12
	widthExpiration = 12
	widthHTTPCode   = 9
)

var upper = cases.Upper(language.Und)

// Printer writes one stdout line per result.
type Printer struct {
	w      io.Writer
	mode   Mode
	colors bool

	headerOnce sync.Once
	mu         sync.Mutex

	positive *color.Color
	negative *color.Color
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithMode sets the rendering mode.
func WithMode(m Mode) PrinterOption {
	return func(p *Printer) {
		p.mode = m
	}
}

// WithColors colours statuses: green for up/valid/sane, red otherwise.
func WithColors(enabled bool) PrinterOption {
	return func(p *Printer) {
		p.colors = enabled
	}
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{
		w:        w,
		positive: color.New(color.FgGreen, color.Bold),
		negative: color.New(color.FgRed, color.Bold),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.colors {
		// Forced even when w is not a terminal.
		p.positive.EnableColor()
		p.negative.EnableColor()
	} else {
		p.positive.DisableColor()
		p.negative.DisableColor()
	}
	return p
}

// Print renders one result. The default mode prints the header before the
// first line of the run.
func (p *Printer) Print(result *model.TestResult) {
	if p.mode == ModeQuiet || result == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode == ModeSimple {
		fmt.Fprintf(p.w, "%s %s\n", result.Subject, p.status(result.Status, 0))
		return
	}

	p.headerOnce.Do(p.printHeader)
	fmt.Fprintf(p.w, "%s %s %s %s %s\n",
		pad(result.Subject, widthSubject),
		p.status(result.Status, widthStatus),
		pad(result.StatusSource, widthSource),
		pad(expiration(result), widthExpiration),
		pad(httpCode(result), widthHTTPCode),
	)
}

func (p *Printer) printHeader() {
	fmt.Fprintf(p.w, "\n%s %s %s %s %s\n",
		pad("Subject", widthSubject),
		pad("Status", widthStatus),
		pad("Source", widthSource),
		pad("Expiration", widthExpiration),
		pad("HTTP Code", widthHTTPCode),
	)
	fmt.Fprintf(p.w, "%s %s %s %s %s\n",
		strings.Repeat("-", widthSubject),
		strings.Repeat("-", widthStatus),
		strings.Repeat("-", widthSource),
		strings.Repeat("-", widthExpiration),
		strings.Repeat("-", widthHTTPCode),
	)
}

// status pads before colouring so escape codes do not break alignment.
func (p *Printer) status(s model.Status, width int) string {
	text := upper.String(string(s))
	if width > 0 {
		text = pad(text, width)
	}
	if s.IsPositive() {
		return p.positive.Sprint(text)
	}
	return p.negative.Sprint(text)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func expiration(r *model.TestResult) string {
	if !r.HasExpirationDate() {
		return "Unknown"
	}
	return strings.ToLower(r.ExpirationDate.UTC().Format(model.WhoisDateLayout))
}

func httpCode(r *model.TestResult) string {
	if r.HTTPStatusCode == 0 {
		return "Unknown"
	}
	return strconv.Itoa(r.HTTPStatusCode)
}
