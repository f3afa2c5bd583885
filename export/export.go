// ABOUTME: Renders solve results, lint diagnostics, and run history in the supported output formats.
// ABOUTME: The text format prints the route map as {1: ['Source', 1, 2, 'Sink'], ...}.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/routegraph/engine"
	"github.com/2389-research/routegraph/graphfile"
	"github.com/2389-research/routegraph/history"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

// Format names an output format.
type Format string

const (
	Text     Format = "text"
	Table    Format = "table"
	JSON     Format = "json"
	YAML     Format = "yaml"
	Markdown Format = "markdown"
	HTML     Format = "html"
)

// Formats lists every format in display order.
func Formats() []Format {
	return []Format{Text, Table, JSON, YAML, Markdown, HTML}
}

// ParseFormat validates a format name. The empty string selects Text.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return Text, nil
	}
	for _, f := range Formats() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (known: %v)", s, Formats())
}

// ContentType returns the MIME type served for f.
func ContentType(f Format) string {
	switch f {
	case JSON:
		return "application/json"
	case YAML:
		return "application/yaml"
	case Markdown:
		return "text/markdown; charset=utf-8"
	case HTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// RouteView is one route as presented to readers.
type RouteView struct {
	Index int      `json:"index" yaml:"index"`
	Path  []string `json:"path" yaml:"path"`
	Stops []int64  `json:"stops" yaml:"stops"`
	Cost  int      `json:"cost" yaml:"cost"`
	Load  int      `json:"load" yaml:"load"`
}

// Report is the format-independent view of a solve result.
type Report struct {
	RunID     string      `json:"run_id" yaml:"run_id"`
	Input     string      `json:"input" yaml:"input"`
	Solver    string      `json:"solver" yaml:"solver"`
	Capacity  int         `json:"capacity" yaml:"capacity"`
	MaxStops  int         `json:"max_stops" yaml:"max_stops"`
	Cost      int         `json:"cost" yaml:"cost"`
	Routes    []RouteView `json:"routes" yaml:"routes"`
	ElapsedMS float64     `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// NewReport builds the view of res.
func NewReport(res *engine.Result) Report {
	rep := Report{
		RunID:     res.RunID.String(),
		Input:     res.Name,
		Solver:    res.Solution.Solver,
		Capacity:  res.Params.Capacity,
		MaxStops:  res.Params.MaxStops,
		Cost:      res.Solution.Cost,
		Routes:    []RouteView{},
		ElapsedMS: float64(res.Elapsed) / float64(time.Millisecond),
	}
	best := res.Solution.BestRoutes()
	for i, r := range res.Solution.Routes {
		rep.Routes = append(rep.Routes, RouteView{
			Index: i + 1,
			Path:  best[i+1],
			Stops: r.Stops,
			Cost:  r.Cost,
			Load:  r.Load,
		})
	}
	return rep
}

// Write renders res to w in format f.
func Write(w io.Writer, f Format, res *engine.Result) error {
	rep := NewReport(res)
	switch f {
	case Text, "":
		return writeText(w, rep)
	case Table:
		return writeTable(w, rep)
	case JSON:
		return writeJSON(w, rep)
	case YAML:
		return writeYAML(w, rep)
	case Markdown:
		_, err := io.WriteString(w, markdown(rep))
		return err
	case HTML:
		return writeHTML(w, "routegraph: "+rep.Input, markdown(rep))
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// writeText prints the numbered route map with quoted depot labels and bare
// stop ids.
func writeText(w io.Writer, rep Report) error {
	var b strings.Builder
	b.WriteString("{")
	for i, r := range rep.Routes {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d: ['Source'", r.Index)
		for _, id := range r.Stops {
			fmt.Fprintf(&b, ", %d", id)
		}
		b.WriteString(", 'Sink']")
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTable(w io.Writer, rep Report) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		Headers("Route", "Path", "Load", "Cost").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return HeaderStyle
			case row == len(rep.Routes):
				return TotalStyle
			case col == 1:
				return PathStyle
			default:
				return CellStyle
			}
		})
	for _, r := range rep.Routes {
		t.Row(strconv.Itoa(r.Index), strings.Join(r.Path, " -> "), strconv.Itoa(r.Load), strconv.Itoa(r.Cost))
	}
	t.Row("", "total", "", strconv.Itoa(rep.Cost))

	_, err := fmt.Fprintf(w, "%s\nsolver %s, capacity %d, max stops %d\n", t.Render(), rep.Solver, rep.Capacity, rep.MaxStops)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func markdown(rep Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Routes for %s\n\n", rep.Input)
	fmt.Fprintf(&b, "Solver `%s`, capacity %d, max stops %d, total cost %d.\n\n",
		rep.Solver, rep.Capacity, rep.MaxStops, rep.Cost)
	if len(rep.Routes) == 0 {
		b.WriteString("No stops to route.\n")
		return b.String()
	}
	b.WriteString("| Route | Path | Load | Cost |\n")
	b.WriteString("|---:|---|---:|---:|\n")
	for _, r := range rep.Routes {
		fmt.Fprintf(&b, "| %d | %s | %d | %d |\n", r.Index, strings.Join(r.Path, " -> "), r.Load, r.Cost)
	}
	return b.String()
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}</body>
</html>
`))

// writeHTML converts Markdown to HTML with goldmark and wraps it in a page.
func writeHTML(w io.Writer, title, md string) error {
	var body bytes.Buffer
	conv := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := conv.Convert([]byte(md), &body); err != nil {
		return fmt.Errorf("convert markdown: %w", err)
	}
	return page.Execute(w, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(body.String())})
}

// WriteDiagnostics renders lint findings. Text prints one finding per line;
// Markdown and HTML render a table; other formats encode the list.
func WriteDiagnostics(w io.Writer, f Format, name string, diags []graphfile.Diagnostic) error {
	if diags == nil {
		diags = []graphfile.Diagnostic{}
	}
	switch f {
	case JSON:
		return writeJSON(w, diags)
	case YAML:
		return writeYAML(w, diags)
	case Markdown:
		_, err := io.WriteString(w, diagnosticsMarkdown(name, diags))
		return err
	case HTML:
		return writeHTML(w, "routegraph: "+name, diagnosticsMarkdown(name, diags))
	}

	if len(diags) == 0 {
		_, err := fmt.Fprintf(w, "%s: ok\n", name)
		return err
	}
	for _, d := range diags {
		loc := name
		if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d", name, d.Line)
		}
		if _, err := fmt.Fprintf(w, "%s: %s [%s] %s\n", loc, d.Severity, d.Rule, d.Message); err != nil {
			return err
		}
	}
	return nil
}

func diagnosticsMarkdown(name string, diags []graphfile.Diagnostic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Diagnostics for %s\n\n", name)
	if len(diags) == 0 {
		b.WriteString("No findings.\n")
		return b.String()
	}
	b.WriteString("| Line | Severity | Rule | Message |\n|---:|---|---|---|\n")
	for _, d := range diags {
		line := ""
		if d.Line > 0 {
			line = strconv.Itoa(d.Line)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", line, d.Severity, d.Rule, d.Message)
	}
	return b.String()
}

// WriteRuns renders recorded runs. Table is styled for terminals; Text is
// tab-separated for pipes.
func WriteRuns(w io.Writer, f Format, runs []history.Run) error {
	if runs == nil {
		runs = []history.Run{}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].ID.Compare(runs[j].ID) > 0 })

	switch f {
	case JSON:
		return writeJSON(w, runs)
	case YAML:
		return writeYAML(w, runs)
	case Table:
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(BorderStyle).
			Headers("Run", "Started", "Input", "Solver", "Status", "Cost").
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return HeaderStyle
				case col == 4:
					return StyleForStatus(runs[row].Status)
				default:
					return CellStyle
				}
			})
		for _, r := range runs {
			t.Row(r.ID.String(), r.StartedAt.Local().Format(time.DateTime), r.Name, r.Solver, r.Status, strconv.Itoa(r.Cost))
		}
		_, err := fmt.Fprintln(w, t.Render())
		return err
	case Text, "":
		for _, r := range runs {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Name, r.Solver, r.Status, r.Cost); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("format %q is not supported for run history", f)
	}
}
