package server

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/descriptions/pkg/config"
)

// Catalog holds the compiled views of a schema directory.
type Catalog struct {
	dir    string
	logger zerolog.Logger

	// parseMu serializes use of the parser, which shares one CUE context.
	parseMu  sync.Mutex
	parser   *config.Parser
	compiler *config.Compiler

	mu     sync.RWMutex
	views  map[string]*config.CompiledView
	byFile map[string]string
}

// NewCatalog creates an empty catalog for dir.
func NewCatalog(dir string, logger zerolog.Logger) *Catalog {
	return &Catalog{
		dir:      dir,
		logger:   logger.With().Str("component", "catalog").Logger(),
		parser:   config.NewParser(),
		compiler: config.NewCompiler(nil, logger),
		views:    make(map[string]*config.CompiledView),
		byFile:   make(map[string]string),
	}
}

// Load parses every schema file in the directory. Files that fail to
// parse or compile are logged and skipped; the returned error covers only
// an unreadable directory.
func (c *Catalog) Load(ctx context.Context) error {
	c.parseMu.Lock()
	parsed, err := c.parser.ParseDir(ctx, c.dir)
	c.parseMu.Unlock()
	if err != nil {
		return err
	}

	views := make(map[string]*config.CompiledView, len(parsed))
	byFile := make(map[string]string, len(parsed))
	for _, pv := range parsed {
		cv, err := c.compiler.Compile(pv)
		if err != nil {
			c.logger.Warn().Err(err).Str("file", pv.SourceFile).Msg("Skipping invalid schema")
			continue
		}
		views[cv.Name] = cv
		byFile[absPath(pv.SourceFile)] = cv.Name
	}

	c.mu.Lock()
	c.views = views
	c.byFile = byFile
	c.mu.Unlock()

	c.logger.Info().Int("views", len(views)).Str("dir", c.dir).Msg("Loaded schema catalog")
	return nil
}

// Reload reparses files. A file that no longer parses keeps its previous
// view. It returns the names of the views that changed.
func (c *Catalog) Reload(ctx context.Context, files []string) []string {
	var changed []string
	for _, file := range files {
		c.parseMu.Lock()
		pv, err := c.parser.ParseFile(ctx, file)
		c.parseMu.Unlock()
		if err != nil {
			c.logger.Warn().Err(err).Str("file", file).Msg("Schema reload failed")
			continue
		}
		cv, err := c.compiler.Compile(pv)
		if err != nil {
			c.logger.Warn().Err(err).Str("file", file).Msg("Schema reload rejected, keeping previous view")
			continue
		}

		c.mu.Lock()
		if prev, ok := c.byFile[absPath(file)]; ok && prev != cv.Name {
			delete(c.views, prev)
		}
		c.views[cv.Name] = cv
		c.byFile[absPath(file)] = cv.Name
		c.mu.Unlock()

		changed = append(changed, cv.Name)
	}
	sort.Strings(changed)
	return changed
}

// Watch reloads changed schema files until ctx is done and passes the
// changed views to onReload.
func (c *Catalog) Watch(ctx context.Context, onReload func(views []*config.CompiledView)) error {
	w := config.NewWatcher(c.logger, 0)
	return w.Watch(ctx, []string{c.dir}, func(files []string) {
		names := c.Reload(ctx, files)
		if len(names) == 0 || onReload == nil {
			return
		}
		views := make([]*config.CompiledView, 0, len(names))
		for _, name := range names {
			if cv, ok := c.Get(name); ok {
				views = append(views, cv)
			}
		}
		onReload(views)
	})
}

// Get returns the view called name.
func (c *Catalog) Get(name string) (*config.CompiledView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cv, ok := c.views[name]
	return cv, ok
}

// Put adds or replaces a compiled view.
func (c *Catalog) Put(cv *config.CompiledView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[cv.Name] = cv
	if cv.Source != "" {
		c.byFile[absPath(cv.Source)] = cv.Name
	}
}

// Names returns the view names in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.views))
	for name := range c.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
