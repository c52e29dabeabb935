package config

import (
	"bytes"
	"fmt"
	"text/template"
)

var projectTemplate = template.Must(template.New("project").Parse(`# assetflow project configuration.
#
# Personal overrides belong in {{.UserFile}}, which is deep-merged over
# this file and should not be committed.

browserSync:
  # server, proxy or close
  browserSyncMod: {{.Mode}}
  port: 3000

# Commands run by the built-in tasks. A string is split on whitespace.
commands:
  include: npx fileinclude src dist
  sass: npx sass src/scss:dist/css
  server: npx browser-sync start --server dist --files dist
  proxy: npx browser-sync start --proxy localhost:8080 --files dist

# Tasks re-run when matching files change while 'watch' is active.
watch:
  include: ["src/**/*.html"]
  sass: ["src/scss/**/*.scss"]

# Extra tasks appended to main in declaration order.
customTasks: {}

supervisor:
  manifest: {{.Manifest}}
  terminateTimeout: {{.TerminateTimeout}}
  debounce: {{.Debounce}}
`))

const userTemplate = `# Personal assetflow overrides, deep-merged over %s.
# Maps merge key by key; lists and scalars replace the shared value.
#
# browserSync:
#   browserSyncMod: proxy
`

// Template renders a starter project configuration for mode.
func Template(mode BrowserSyncMode) ([]byte, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w %q: browserSyncMod only supports %s",
			ErrInvalidBrowserSyncMode, mode, JoinModes())
	}

	var buf bytes.Buffer

	err := projectTemplate.Execute(&buf, map[string]interface{}{
		"Mode":             mode,
		"UserFile":         UserProjectFiles[0],
		"Manifest":         DefaultManifest,
		"TerminateTimeout": DefaultTerminateTimeout.String(),
		"Debounce":         DefaultDebounce.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering project template: %w", err)
	}

	return buf.Bytes(), nil
}

// UserTemplate renders a starter user override file.
func UserTemplate() []byte {
	return []byte(fmt.Sprintf(userTemplate, DefaultProjectFiles[0]))
}
