package docs

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"text/tabwriter"
)

// Formatter renders a Model to a writer.
type Formatter interface {
	Format(w io.Writer, model *Model) error
}

// NewFormatter returns a formatter for the given format name.
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text", "txt":
		return &TextFormatter{}, nil
	case "markdown", "md":
		return &MarkdownFormatter{}, nil
	case "html":
		return &HTMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported tasks format: %s", format)
	}
}

func describe(t TaskInfo) string {
	text := t.Description
	if text == "" {
		text = "-"
	}

	if len(t.Members) > 0 {
		text += " [" + t.Kind + ": " + strings.Join(t.Members, ", ") + "]"
	}

	return text
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

// TextFormatter renders an aligned two-column listing for terminals.
type TextFormatter struct{}

func (f *TextFormatter) Format(w io.Writer, model *Model) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "%s\n", model.title())

	if model.Project != "" {
		fmt.Fprintf(tw, "project: %s\n", model.Project)
	}

	fmt.Fprintln(tw)

	for _, t := range model.Tasks {
		fmt.Fprintf(tw, "  %s\t%s\n", t.Name, describe(t))

		for _, o := range t.Options {
			fmt.Fprintf(tw, "    --%s\t%s\n", o.Name, o.Description)
		}
	}

	return tw.Flush()
}

// ---------------------------------------------------------------------------
// Markdown
// ---------------------------------------------------------------------------

// MarkdownFormatter renders the task reference as a Markdown table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(w io.Writer, model *Model) error {
	fmt.Fprintf(w, "# %s\n\n", model.title())

	if model.Project != "" {
		fmt.Fprintf(w, "**Project:** `%s`\n\n", model.Project)
	}

	if len(model.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks registered.")
		return nil
	}

	fmt.Fprintln(w, "| Task | Kind | Description | Options |")
	fmt.Fprintln(w, "|------|------|-------------|---------|")

	for _, t := range model.Tasks {
		opts := "-"
		if len(t.Options) > 0 {
			parts := make([]string, len(t.Options))
			for i, o := range t.Options {
				parts[i] = fmt.Sprintf("`--%s`: %s", o.Name, escapeCell(o.Description))
			}

			opts = strings.Join(parts, "<br>")
		}

		fmt.Fprintf(w, "| `%s` | %s | %s | %s |\n", t.Name, t.Kind, escapeCell(describe(t)), opts)
	}

	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ---------------------------------------------------------------------------
// HTML
// ---------------------------------------------------------------------------

// HTMLFormatter renders the task reference as a standalone HTML page.
type HTMLFormatter struct{}

var htmlTpl = template.Must(template.New("tasks").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:2em;line-height:1.6}
table{border-collapse:collapse;width:100%;margin-bottom:1em}
th,td{border:1px solid #ddd;padding:8px;text-align:left;vertical-align:top}
th{background:#f5f5f5}
code{background:#f0f0f0;padding:2px 4px;border-radius:3px}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Project}}<p><strong>Project:</strong> <code>{{.Project}}</code></p>{{end}}
<table>
<tr><th>Task</th><th>Kind</th><th>Description</th><th>Members</th><th>Options</th></tr>
{{range .Tasks}}<tr><td><code>{{.Name}}</code></td><td>{{.Kind}}</td><td>{{if .Description}}{{.Description}}{{else}}-{{end}}</td><td>{{if .Members}}{{join .Members ", "}}{{else}}-{{end}}</td><td>{{range .Options}}<code>--{{.Name}}</code> {{.Description}}<br>{{else}}-{{end}}</td></tr>
{{end}}
</table>
</body>
</html>
`))

type htmlModel struct {
	*Model
	Title string
}

func (f *HTMLFormatter) Format(w io.Writer, model *Model) error {
	return htmlTpl.Execute(w, htmlModel{Model: model, Title: model.title()})
}
