package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/assetflow/internal/maputil"
)

// Project file names, looked up in the project directory in order.
var (
	DefaultProjectFiles = []string{"assetflow.config.yaml", "assetflow.config.yml", "assetflow.config.json"}
	UserProjectFiles    = []string{"assetflow.config.user.yaml", "assetflow.config.user.yml", "assetflow.config.user.json"}
)

// Fatal project configuration errors. Each one degrades the main task to an
// error report instead of running the pipeline.
var (
	ErrDefaultConfigMissing   = errors.New("project configuration not found")
	ErrInvalidBrowserSyncMode = errors.New("invalid browser-sync mode")
	ErrReservedTaskName       = errors.New("custom task name is reserved")
	ErrInvalidCustomTask      = errors.New("invalid custom task")
)

// IsFatal reports whether err is one of the fatal project configuration errors.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDefaultConfigMissing) ||
		errors.Is(err, ErrInvalidBrowserSyncMode) ||
		errors.Is(err, ErrReservedTaskName) ||
		errors.Is(err, ErrInvalidCustomTask)
}

// BrowserSyncMode selects how the live-reload server runs.
type BrowserSyncMode string

// Supported browser-sync modes.
const (
	ModeServer BrowserSyncMode = "server"
	ModeProxy  BrowserSyncMode = "proxy"
	ModeClose  BrowserSyncMode = "close"
)

// BrowserSyncModes lists the accepted modes in display order.
var BrowserSyncModes = []BrowserSyncMode{ModeServer, ModeProxy, ModeClose}

// Valid reports whether m is one of the supported modes.
func (m BrowserSyncMode) Valid() bool {
	switch m {
	case ModeServer, ModeProxy, ModeClose:
		return true
	default:
		return false
	}
}

// Names of the tasks assetflow registers itself.
const (
	TaskInclude = "include"
	TaskSass    = "sass"
	TaskWatch   = "watch"
	TaskServer  = "server"
	TaskProxy   = "proxy"
	TaskMain    = "main"
	TaskStart   = "start"
	TaskDefault = "default"
)

// ReservedTaskNames cannot be used as custom task names.
var ReservedTaskNames = []string{
	TaskInclude, TaskSass, TaskWatch, TaskServer, TaskProxy, TaskMain, TaskStart, TaskDefault,
}

// IsReservedTaskName reports whether name collides with a built-in task.
func IsReservedTaskName(name string) bool {
	for _, r := range ReservedTaskNames {
		if r == name {
			return true
		}
	}

	return false
}

// Supervisor defaults.
const (
	DefaultManifest         = "package.json"
	DefaultTerminateTimeout = 5 * time.Second
	DefaultDebounce         = 200 * time.Millisecond
)

// Project is the merged project configuration. It is not modified after
// Resolve returns.
type Project struct {
	BrowserSync BrowserSync `mapstructure:"browserSync" json:"browserSync"`

	// Commands maps built-in task names (include, sass, server, proxy) to the
	// argv of the external tool implementing them.
	Commands map[string][]string `mapstructure:"commands" json:"commands,omitempty"`

	// Watch maps a task name to the patterns whose changes re-run it while
	// the watch task is active.
	Watch map[string][]string `mapstructure:"watch" json:"watch,omitempty"`

	// CustomTasks are appended to the main pipeline in CustomTaskOrder.
	CustomTasks map[string]CustomTask `mapstructure:"customTasks" json:"customTasks,omitempty"`

	Supervisor SupervisorSettings `mapstructure:"supervisor" json:"supervisor"`

	// CustomTaskOrder holds the CustomTasks keys in declaration order.
	CustomTaskOrder []string `mapstructure:"-" json:"-"`

	// Raw is the merged generic document, including keys assetflow itself
	// does not interpret.
	Raw map[string]interface{} `mapstructure:"-" json:"-"`

	Dir         string `mapstructure:"-" json:"-"`
	DefaultFile string `mapstructure:"-" json:"-"`
	UserFile    string `mapstructure:"-" json:"-"`
}

// BrowserSync holds the live-reload server settings.
type BrowserSync struct {
	Mode BrowserSyncMode `mapstructure:"browserSyncMod" json:"browserSyncMod"`
	Port int             `mapstructure:"port" json:"port,omitempty"`
}

// CustomTask is a user-declared task run as an external command.
type CustomTask struct {
	Description string            `mapstructure:"description" json:"description,omitempty"`
	Command     []string          `mapstructure:"command" json:"command"`
	Options     map[string]string `mapstructure:"options" json:"options,omitempty"`
}

// SupervisorSettings configures the watch-and-restart supervisor.
type SupervisorSettings struct {
	// Manifest is the dependency manifest; changes only produce a warning.
	Manifest string `mapstructure:"manifest" json:"manifest"`

	// Sources are the workflow paths whose changes restart the main
	// pipeline in debug mode.
	Sources []string `mapstructure:"sources" json:"sources"`

	TerminateTimeout time.Duration `mapstructure:"terminateTimeout" json:"terminateTimeout"`
	Debounce         time.Duration `mapstructure:"debounce" json:"debounce"`
}

// DefaultSources returns the workflow source patterns watched when the
// project does not configure any.
func DefaultSources() []string {
	sources := make([]string, 0, len(DefaultProjectFiles)+len(UserProjectFiles)+2)
	sources = append(sources, DefaultProjectFiles...)
	sources = append(sources, UserProjectFiles...)

	return append(sources, "workflow", "workflow/**")
}

// LoadProject reads the default and the optional user project configuration
// from dir and resolves them. A missing default file yields an error wrapping
// ErrDefaultConfigMissing; a missing user file is not an error.
//
// The returned project is not validated; call Validate.
func LoadProject(dir string) (*Project, error) {
	defPath, err := findFile(dir, DefaultProjectFiles)
	if err != nil {
		return nil, err
	}

	if defPath == "" {
		return nil, fmt.Errorf("%w in %s: create %s (see `assetflow init`)",
			ErrDefaultConfigMissing, dir, DefaultProjectFiles[0])
	}

	def, err := readProjectFile(defPath)
	if err != nil {
		return nil, err
	}

	user := &projectFile{}

	userPath, err := findFile(dir, UserProjectFiles)
	if err != nil {
		return nil, err
	}

	if userPath != "" {
		if user, err = readProjectFile(userPath); err != nil {
			return nil, err
		}
	}

	p, err := Resolve(def.values, user.values)
	if err != nil {
		return nil, err
	}

	p.Dir = dir
	p.DefaultFile = defPath
	p.UserFile = userPath
	p.CustomTaskOrder = mergeKeyOrder(user.customTaskKeys, def.customTaskKeys, p.CustomTasks)

	return p, nil
}

// Resolve deep-merges user over def and decodes the result. Neither input is
// modified. Custom tasks are ordered by name because generic maps carry no
// key order; LoadProject replaces this with the declaration order.
func Resolve(def, user map[string]interface{}) (*Project, error) {
	merged := maputil.DeepMerge(def, user)

	p := &Project{}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			commandStringHook,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating project decoder: %w", err)
	}

	if err := dec.Decode(maputil.DeepCopyMap(merged)); err != nil {
		return nil, fmt.Errorf("decoding project configuration: %w", err)
	}

	p.Raw = merged
	p.CustomTaskOrder = sortedKeys(p.CustomTasks)
	p.applyDefaults()

	return p, nil
}

// Validate checks the fatal configuration invariants: a supported
// browser-sync mode and custom tasks that neither shadow a built-in task nor
// lack a command.
func (p *Project) Validate() error {
	if !p.BrowserSync.Mode.Valid() {
		return fmt.Errorf("%w %q: browserSyncMod only supports %s",
			ErrInvalidBrowserSyncMode, p.BrowserSync.Mode, JoinModes())
	}

	for _, name := range p.CustomTaskOrder {
		if IsReservedTaskName(name) {
			return fmt.Errorf("%w: %q is a built-in task", ErrReservedTaskName, name)
		}

		if len(p.CustomTasks[name].Command) == 0 {
			return fmt.Errorf("%w %q: command is required", ErrInvalidCustomTask, name)
		}
	}

	return nil
}

// JoinModes renders the supported browser-sync modes for messages.
func JoinModes() string {
	names := make([]string, len(BrowserSyncModes))
	for i, m := range BrowserSyncModes {
		names[i] = string(m)
	}

	return strings.Join(names, ", ")
}

// ManifestPath returns the absolute path of the dependency manifest.
func (p *Project) ManifestPath() string {
	if filepath.IsAbs(p.Supervisor.Manifest) {
		return p.Supervisor.Manifest
	}

	return filepath.Join(p.Dir, p.Supervisor.Manifest)
}

func (p *Project) applyDefaults() {
	if p.Supervisor.Manifest == "" {
		p.Supervisor.Manifest = DefaultManifest
	}

	if len(p.Supervisor.Sources) == 0 {
		p.Supervisor.Sources = DefaultSources()
	}

	if p.Supervisor.TerminateTimeout <= 0 {
		p.Supervisor.TerminateTimeout = DefaultTerminateTimeout
	}

	if p.Supervisor.Debounce <= 0 {
		p.Supervisor.Debounce = DefaultDebounce
	}
}

// commandStringHook lets commands be written as a single string, split on
// whitespace, as well as an argv list.
var commandStringHook mapstructure.DecodeHookFuncType = func(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}

	return strings.Fields(data.(string)), nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

type projectFile struct {
	values         map[string]interface{}
	customTaskKeys []string
}

func findFile(dir string, names []string) (string, error) {
	for _, name := range names {
		p := filepath.Join(dir, name)

		info, err := os.Stat(p)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("project configuration %s is a directory", p)
			}

			return p, nil
		}

		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
	}

	return "", nil
}

func readProjectFile(path string) (*projectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project configuration %s: %w", path, err)
	}

	var values map[string]interface{}
	if err := sigsyaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing project configuration %s: %w", path, err)
	}

	if values == nil {
		values = map[string]interface{}{}
	}

	root, err := documentRoot(data)
	if err != nil {
		return nil, fmt.Errorf("parsing project configuration %s: %w", path, err)
	}

	keepSourceText(values, root)

	return &projectFile{values: values, customTaskKeys: mappingKeys(root, "customTasks")}, nil
}

// documentRoot parses data with the node API, which keeps key order and the
// literal text of every scalar. It returns nil for an empty document.
func documentRoot(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}

	return doc.Content[0], nil
}

// mappingKeys returns the keys of the mapping found at path, in document order.
func mappingKeys(root *yaml.Node, path ...string) []string {
	node := root
	for _, key := range path {
		node = lookupKey(node, key)
	}

	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}

	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}

	return keys
}

// keepSourceText restores the literal text of values that end up on a
// command line or in a glob. The generic decoder follows YAML 1.1, where an
// unquoted on or yes is a boolean and 1.10 is the float 1.1; the tools must
// receive what the user wrote.
func keepSourceText(values map[string]interface{}, root *yaml.Node) {
	for _, section := range []string{"commands", "watch"} {
		if m, ok := values[section].(map[string]interface{}); ok {
			replaceWithText(m, lookupKey(root, section))
		}
	}

	tasks, _ := values["customTasks"].(map[string]interface{})
	taskNodes := lookupKey(root, "customTasks")

	for name, v := range tasks {
		task, ok := v.(map[string]interface{})
		if !ok {
			continue
		}

		taskNode := lookupKey(taskNodes, name)

		if n := lookupKey(taskNode, "command"); n != nil {
			task["command"] = sourceText(task["command"], n)
		}

		if opts, ok := task["options"].(map[string]interface{}); ok {
			replaceWithText(opts, lookupKey(taskNode, "options"))
		}
	}
}

func replaceWithText(m map[string]interface{}, node *yaml.Node) {
	for k, v := range m {
		if n := lookupKey(node, k); n != nil {
			m[k] = sourceText(v, n)
		}
	}
}

// sourceText returns the literal text of a scalar, or of every scalar in a
// sequence. Nulls, mappings and anything the two decoders disagree on are
// returned unchanged.
func sourceText(v interface{}, n *yaml.Node) interface{} {
	if v == nil {
		return nil
	}

	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias != nil {
			return sourceText(v, n.Alias)
		}
	case yaml.ScalarNode:
		if _, isMap := v.(map[string]interface{}); !isMap {
			return n.Value
		}
	case yaml.SequenceNode:
		items, ok := v.([]interface{})
		if !ok || len(items) != len(n.Content) {
			return v
		}

		out := make([]interface{}, len(items))
		for i := range items {
			out[i] = sourceText(items[i], n.Content[i])
		}

		return out
	}

	return v
}

func lookupKey(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}

	return nil
}

// mergeKeyOrder orders the merged keys the way a defaults-filling merge into
// the user document would: user keys first, then keys only the default
// document declares. Keys absent from present are dropped.
func mergeKeyOrder[V any](user, def []string, present map[string]V) []string {
	seen := make(map[string]bool, len(present))
	order := make([]string, 0, len(present))

	for _, keys := range [][]string{user, def} {
		for _, k := range keys {
			if _, ok := present[k]; !ok || seen[k] {
				continue
			}

			seen[k] = true
			order = append(order, k)
		}
	}

	// Anything the documents did not reveal (e.g. JSON quirks) goes last, sorted.
	for _, k := range sortedKeys(present) {
		if !seen[k] {
			order = append(order, k)
		}
	}

	return order
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
