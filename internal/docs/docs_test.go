package docs_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assetflow/internal/docs"
	"github.com/hupe1980/assetflow/internal/task"
)

func sampleModel() *docs.Model {
	m := docs.FromDescriptions([]task.Description{
		{Name: "sass", Kind: task.KindFunc, Text: "compile stylesheets"},
		{Name: "main", Kind: task.KindSeries, Text: "run the pipeline", Members: []string{"include", "sass", "watch"}},
		{Name: "default", Kind: task.KindParallel, Text: "default task", Members: []string{"start"}, Options: map[string]string{
			"debug": "restart on workflow changes",
			"color": "pass false to disable colours",
		}},
		{Name: "lint", Kind: task.KindFunc},
	})
	m.Project = "site@1.2.0"

	return m
}

func TestFromDescriptions(t *testing.T) {
	m := sampleModel()

	require.Len(t, m.Tasks, 4)
	assert.Equal(t, "sass", m.Tasks[0].Name)
	assert.Equal(t, "series", m.Tasks[1].Kind)
	assert.Equal(t, []string{"include", "sass", "watch"}, m.Tasks[1].Members)

	require.Len(t, m.Tasks[2].Options, 2)
	assert.Equal(t, "color", m.Tasks[2].Options[0].Name, "options are sorted")
	assert.Equal(t, "debug", m.Tasks[2].Options[1].Name)
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"", false},
		{"text", false},
		{"markdown", false},
		{"MD", false},
		{"html", false},
		{"pdf", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f, err := docs.NewFormatter(tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, f)
		})
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&docs.TextFormatter{}).Format(&buf, sampleModel()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "assetflow tasks\nproject: site@1.2.0\n"))
	assert.Contains(t, out, "run the pipeline [series: include, sass, watch]")
	assert.Contains(t, out, "--debug")
	assert.Contains(t, out, "restart on workflow changes")
	assert.Contains(t, out, "lint")

	// Task names share one aligned column.
	var cols []int

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "  sass") || strings.HasPrefix(line, "  main") {
			cols = append(cols, strings.Index(line, strings.TrimSpace(line[6:])))
		}
	}

	require.Len(t, cols, 2)
	assert.Equal(t, cols[0], cols[1])
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&docs.MarkdownFormatter{}).Format(&buf, sampleModel()))

	out := buf.String()
	assert.Contains(t, out, "# assetflow tasks")
	assert.Contains(t, out, "**Project:** `site@1.2.0`")
	assert.Contains(t, out, "| Task | Kind | Description | Options |")
	assert.Contains(t, out, "| `sass` | func | compile stylesheets | - |")
	assert.Contains(t, out, "`--color`: pass false to disable colours<br>`--debug`: restart on workflow changes")
	assert.Contains(t, out, "| `lint` | func | - | - |")
}

func TestMarkdownFormatter_EscapesPipes(t *testing.T) {
	m := docs.FromDescriptions([]task.Description{{Name: "x", Kind: task.KindFunc, Text: "a|b"}})

	var buf bytes.Buffer
	require.NoError(t, (&docs.MarkdownFormatter{}).Format(&buf, m))
	assert.Contains(t, buf.String(), `a\|b`)
}

func TestMarkdownFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&docs.MarkdownFormatter{}).Format(&buf, &docs.Model{Title: "none"}))
	assert.Contains(t, buf.String(), "# none")
	assert.Contains(t, buf.String(), "No tasks registered.")
}

func TestHTMLFormatter(t *testing.T) {
	m := sampleModel()
	m.Tasks[0].Description = "<script>"

	var buf bytes.Buffer
	require.NoError(t, (&docs.HTMLFormatter{}).Format(&buf, m))

	out := buf.String()
	assert.Contains(t, out, "<title>assetflow tasks</title>")
	assert.Contains(t, out, "<code>site@1.2.0</code>")
	assert.Contains(t, out, "include, sass, watch")
	assert.Contains(t, out, "<code>--debug</code>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "<script>")
}
