// Package app wires the domain components around one store.
package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/attributes"
	"github.com/tasklattice/tasklattice/internal/config"
	"github.com/tasklattice/tasklattice/internal/dates"
	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/migrate"
	"github.com/tasklattice/tasklattice/internal/search"
	"github.com/tasklattice/tasklattice/internal/storage/sqlite"
	"github.com/tasklattice/tasklattice/internal/tags"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/templates"
)

// App holds the process-wide components.
type App struct {
	Config *config.Config
	Log    *logrus.Logger
	Store  *sqlite.Store

	Tasks      *tasks.Manager
	Lists      *lists.Manager
	Templates  *templates.Engine
	Tags       *tags.Manager
	Attributes *attributes.Manager
	Search     *search.Composer
	Dates      *dates.Parser

	mu        sync.Mutex
	observers events.Fanout
	closers   []io.Closer
}

// Open builds the logger, opens and migrates the store and wires the
// components.
func Open(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, logCloser, err := logging.New(cfg.Log.Options())
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(cfg.Database.Path, cfg.Database.StoreOptions())
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	a := New(cfg, log, store)
	a.closers = append(a.closers, store, logCloser)
	log.WithFields(logrus.Fields{"db": cfg.Database.Path, "driver": cfg.Database.Driver}).Debug("store opened")
	return a, nil
}

// New wires components around an already open store. The caller keeps
// ownership of store.
func New(cfg *config.Config, log *logrus.Logger, store *sqlite.Store) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Nop()
	}
	a := &App{Config: cfg, Log: log, Store: store, Dates: dates.New()}
	n := events.NotifierFunc(a.publish)
	a.Tasks = tasks.NewManager(store, log, n)
	a.Lists = lists.NewManager(store, a.Tasks, log, n)
	a.Templates = templates.NewEngine(store, a.Lists, a.Tasks, log, n)
	a.Tags = tags.NewManager(store, log, n)
	a.Attributes = attributes.NewManager(store, log, n)
	a.Search = search.NewComposer(store, log)
	return a
}

// Observe adds a notifier that receives every committed event.
func (a *App) Observe(n events.Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, n)
}

func (a *App) publish(e events.Event) {
	a.mu.Lock()
	obs := a.observers
	a.mu.Unlock()
	obs.Notify(e)
}

// Migration returns the component set used by export and import.
func (a *App) Migration() migrate.Components {
	return migrate.Components{
		Lists:      a.Lists,
		Tasks:      a.Tasks,
		Tags:       a.Tags,
		Attributes: a.Attributes,
		Templates:  a.Templates,
		Log:        a.Log,
	}
}

// Close releases what Open acquired, store first.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
