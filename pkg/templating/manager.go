package templating

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/markup/pkg/markup"
)

// TemplateManager is the central controller for the templating engine.
// It manages the template set, configuration, and the fragment loader used for
// {{fragment}} placeholders. It is responsible for loading, parsing, and
// executing templates. All methods are concurrent-safe.
type TemplateManager struct {
	logger        *slog.Logger
	config        *TemplateConfig
	loader        FragmentLoader
	templates     map[string]*Template
	templateNames []string
	templateDir   string
	mu            sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager.
// It requires a logger, an optional fragment loader (can be nil if no template
// uses {{fragment}}), a configuration, and the path to the data directory which
// must contain a "templates" subdirectory. It performs an initial Refresh to
// load all templates.
func NewTemplateManager(logger *slog.Logger, loader FragmentLoader, config *TemplateConfig, dataDir string) (*TemplateManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	tm := &TemplateManager{
		logger:      logger,
		loader:      loader,
		config:      config,
		templateDir: filepath.Join(dataDir, "templates"),
		templates:   map[string]*Template{},
	}

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized")
	return tm, nil
}

// SetConfig applies a new configuration to the TemplateManager. A changed
// extension only takes effect on the next Refresh.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
}

// Refresh reloads all templates from the filesystem. On error the previously
// loaded set is kept.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	filePattern := filepath.Join(tm.templateDir, "*"+tm.config.Extension)
	tm.logger.Info("Loading template files...")

	paths, err := filepath.Glob(filePattern)
	if err != nil {
		tm.logger.Error("failed to list template files", "error", err)
		return err
	}
	if len(paths) == 0 {
		tm.logger.Warn("No template files found matching pattern", "pattern", filePattern)
	}

	templates := make(map[string]*Template, len(paths))
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat template %s: %w", path, err)
		}
		if tm.config.MaxTemplateSize > 0 && info.Size() > int64(tm.config.MaxTemplateSize) {
			tm.logger.Error("template exceeds size limit", "path", path, "size", info.Size(), "limit", tm.config.MaxTemplateSize)
			return fmt.Errorf("template %s is %d bytes, over the %d byte limit", path, info.Size(), tm.config.MaxTemplateSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", path, err)
		}
		name := filepath.Base(path)
		t, err := Parse(name, string(content))
		if err != nil {
			tm.logger.Error("failed to parse template file", "path", path, "error", err)
			return err
		}
		templates[name] = t
		names = append(names, name)
	}
	sort.Strings(names)

	tm.templates = templates
	tm.templateNames = names
	tm.logger.Info("Loaded template files", "count", len(names))
	return nil
}

// Execute renders the named template with data and writes the result to w.
// Nothing is written unless rendering succeeds.
func (tm *TemplateManager) Execute(ctx context.Context, w io.Writer, name string, data map[string]any) error {
	t, config, err := tm.lookup(name)
	if err != nil {
		return err
	}
	return tm.execute(ctx, w, t, config, data)
}

// Stream renders the named template with markup.Stream, so callbacks that run
// at the stream phases can add content after the head has been written.
func (tm *TemplateManager) Stream(ctx context.Context, w io.Writer, name string, data map[string]any) error {
	t, config, err := tm.lookup(name)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, config.fragmentTimeout())
	defer cancel()

	res, err := t.Build(ctx, data, tm.loader, config.StrictData)
	if err != nil {
		return err
	}
	if err = markup.Stream(ctx, w, res); err != nil {
		tm.logger.ErrorContext(ctx, "Failed to stream template", "template", name, "error", err)
		return err
	}
	return nil
}

// ExecuteTemplateString parses and executes a template string with the
// manager's configuration and fragment loader. This is ideal for testing or
// previewing templates without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(ctx context.Context, w io.Writer, content string, data map[string]any) error {
	t, err := Parse("string", content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}
	return tm.execute(ctx, w, t, tm.GetConfig(), data)
}

func (tm *TemplateManager) execute(ctx context.Context, w io.Writer, t *Template, config TemplateConfig, data map[string]any) error {
	ctx, cancel := withTimeout(ctx, config.fragmentTimeout())
	defer cancel()

	res, err := t.Build(ctx, data, tm.loader, config.StrictData)
	if err != nil {
		return err
	}
	out, err := markup.Render(ctx, res)
	if err != nil {
		tm.logger.ErrorContext(ctx, "Failed to render template", "template", t.Name(), "error", err)
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (tm *TemplateManager) lookup(name string) (*Template, TemplateConfig, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.templates[name]
	if !ok {
		return nil, TemplateConfig{}, fmt.Errorf("templating: %q is undefined", name)
	}
	return t, *tm.config, nil
}

// GetConfig returns a copy of the current configuration.
// This mainly exists for concurrency-safety reasons.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetTemplateNames returns the sorted names of the loaded templates.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.templateNames...)
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	return tm.templateDir
}

// ResolveName returns the loaded template matching name. Names are file
// names, such as "page.tmpl.html"; a name without the extension is accepted
// too. The boolean is false when nothing matches.
func (tm *TemplateManager) ResolveName(name string) (string, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if _, ok := tm.templates[name]; ok {
		return name, true
	}
	full := name + tm.config.Extension
	if _, ok := tm.templates[full]; ok && !strings.HasSuffix(name, tm.config.Extension) {
		return full, true
	}
	return "", false
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
