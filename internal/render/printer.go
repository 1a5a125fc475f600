// Package render turns command results into JSON or terminal text.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

// Options configures a Printer.
type Options struct {
	// JSON switches every view to indented JSON on Out.
	JSON    bool
	Profile termenv.Profile
}

// Printer writes results to Out and diagnostics to Err.
type Printer struct {
	Out  io.Writer
	Err  io.Writer
	json bool

	ok     lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	dim    lipgloss.Style
	bold   lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
}

// New creates a Printer.
func New(out, errOut io.Writer, opts Options) *Printer {
	r := lipgloss.NewRenderer(out)
	r.SetColorProfile(opts.Profile)
	return &Printer{
		Out:    out,
		Err:    errOut,
		json:   opts.JSON,
		ok:     r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("3")),
		bad:    r.NewStyle().Foreground(lipgloss.Color("1")),
		dim:    r.NewStyle().Faint(true),
		bold:   r.NewStyle().Bold(true),
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		cell:   r.NewStyle().Padding(0, 1),
	}
}

// JSONMode reports whether output is JSON.
func (p *Printer) JSONMode() bool {
	return p.json
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Raw writes a remote payload. JSON mode re-indents it; otherwise strings are
// printed bare and anything else as indented JSON.
func (p *Printer) Raw(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err := fmt.Fprintln(p.Out, strings.TrimSpace(string(raw)))
		return err
	}
	if s, ok := v.(string); ok && !p.json {
		p.Line(s)
		return nil
	}
	return p.JSON(v)
}

// Line writes one line of text.
func (p *Printer) Line(format string, args ...any) {
	if len(args) == 0 {
		fmt.Fprintln(p.Out, format)
		return
	}
	fmt.Fprintf(p.Out, format+"\n", args...)
}

// Blank writes an empty line.
func (p *Printer) Blank() {
	fmt.Fprintln(p.Out)
}

// Success, Warning and Failure prefix a line with a status mark. Failure
// goes to Err.
func (p *Printer) Success(format string, args ...any) {
	p.Line(p.ok.Render("✓")+" "+format, args...)
}

func (p *Printer) Warning(format string, args ...any) {
	p.Line(p.warn.Render("⚠")+" "+format, args...)
}

// ErrWarning is Warning written to Err.
func (p *Printer) ErrWarning(format string, args ...any) {
	fmt.Fprintf(p.Err, p.warn.Render("⚠")+" "+format+"\n", args...)
}

func (p *Printer) Failure(format string, args ...any) {
	fmt.Fprintf(p.Err, p.bad.Render("✗")+" "+format+"\n", args...)
}

// Dim renders s faint.
func (p *Printer) Dim(s string) string { return p.dim.Render(s) }

// Bold renders s bold.
func (p *Printer) Bold(s string) string { return p.bold.Render(s) }

// Header renders a section title.
func (p *Printer) Header(s string) string { return p.header.Render(s) }

// Alert renders s in the warning colour.
func (p *Printer) Alert(s string) string { return p.warn.Render(s) }

// Urgent renders s in the error colour.
func (p *Printer) Urgent(s string) string { return p.bad.Render(s) }

// Table writes rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.dim).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.bold.Padding(0, 1)
			}
			return p.cell
		})
	fmt.Fprintln(p.Out, t.Render())
}

// ErrorBody is the JSON shape of a failed command.
type ErrorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Status  int              `json:"status,omitempty"`
	Details map[string]any   `json:"details,omitempty"`
}

// Error reports err. JSON mode writes {"error": {...}} to Out; text mode
// writes "error: [CODE] message" to Err.
func (p *Printer) Error(err error) {
	amErr, ok := errors.As(err)
	if !ok {
		amErr = errors.NewInternal(err)
	}
	if p.json {
		body := ErrorBody{Code: amErr.Code, Message: amErr.Message, Status: amErr.Status}
		if amErr.Code != errors.ErrInternal {
			body.Details = amErr.Details
		}
		_ = p.JSON(map[string]ErrorBody{"error": body})
		return
	}
	fmt.Fprintf(p.Err, "error: [%s] %s\n", amErr.Code, amErr.Message)
}
