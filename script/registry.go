package script

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/spf13/afero"
)

// manifestFileName is the optional per-directory metadata file.
const manifestFileName = "manifest.json"

// scriptExtension is the file extension external scripts must carry.
const scriptExtension = ".js"

// manifest describes the scripts in a directory. It is optional; scripts
// without an entry run with default settings.
type manifest struct {
	Scripts map[string]manifestEntry `json:"scripts" validate:"dive"`
}

// manifestEntry carries per-script metadata from the manifest.
type manifestEntry struct {
	Description string `json:"description" validate:"max=500"`
	// Timeout is a Go duration string such as "2s". Zero means the
	// engine default applies.
	Timeout string `json:"timeout" validate:"omitempty,min=2"`
}

// Registry implements the ScriptRegistry interface. External scripts are
// loaded from a directory on an afero filesystem, so tests can run against
// an in-memory one; embedded scripts registered by the host act as
// fallbacks when no external file shadows them.
type Registry struct {
	fs  afero.Fs
	dir string

	mu            sync.RWMutex
	scripts       map[string]*Script
	embedded      map[string]string
	watcher       *fsnotify.Watcher
	watcherActive bool

	validate *validator.Validate
}

// NewRegistry creates a registry reading external scripts from dir on the
// real filesystem.
func NewRegistry(dir string) *Registry {
	return NewRegistryWithFs(afero.NewOsFs(), dir)
}

// NewRegistryWithFs creates a registry on an explicit filesystem. Hot
// reloading is only available on the real filesystem.
func NewRegistryWithFs(fsys afero.Fs, dir string) *Registry {
	return &Registry{
		fs:       fsys,
		dir:      dir,
		scripts:  make(map[string]*Script),
		embedded: make(map[string]string),
		validate: validator.New(),
	}
}

// RegisterEmbedded adds a built-in script under the given name. An external
// file with the same name shadows it; deleting the file restores it.
func (r *Registry) RegisterEmbedded(name, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.embedded[name] = content
	if existing, ok := r.scripts[name]; !ok || existing.Source == SourceEmbedded {
		r.scripts[name] = r.buildEmbedded(name, content)
	}
	slog.Debug("Registered embedded script", "script", name)
}

// LoadScripts discovers and loads all available scripts: embedded ones
// first, then external files, which shadow embedded scripts of the same
// name. A missing scripts directory is not an error; external scripts are
// optional.
func (r *Registry) LoadScripts() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, content := range r.embedded {
		r.scripts[name] = r.buildEmbedded(name, content)
	}
	slog.Info("Loaded embedded scripts", "count", len(r.embedded))

	if ok, err := afero.DirExists(r.fs, r.dir); err != nil || !ok {
		slog.Debug("Scripts directory does not exist, skipping external scripts", "path", r.dir)
		return nil
	}

	manifests, err := r.loadManifests()
	if err != nil {
		return err
	}

	loaded := 0
	err = afero.Walk(r.fs, r.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), scriptExtension) {
			return nil
		}

		name, err := r.scriptName(path)
		if err != nil {
			slog.Debug("Skipping file outside scripts directory", "path", path, "error", err)
			return nil
		}

		script, err := r.loadExternal(name, path, info, manifests)
		if err != nil {
			slog.Error("Failed to load external script", "script", name, "path", path, "error", err)
			return nil
		}
		r.scripts[name] = script
		loaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan scripts directory %s: %w", r.dir, err)
	}

	slog.Info("Loaded external scripts", "count", loaded, "directory", r.dir)
	return nil
}

// GetScript retrieves a script by name.
func (r *Registry) GetScript(name string) (*Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if script, ok := r.scripts[name]; ok {
		return script, nil
	}
	return nil, NewScriptError(
		ErrorTypeNotFound,
		"",
		name,
		fmt.Sprintf("script not found: %s", name),
		nil,
	)
}

// ReloadScript reloads one script from disk. When the external file is gone
// the embedded version, if any, is restored.
func (r *Registry) ReloadScript(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloadLocked(name)
}

func (r *Registry) reloadLocked(name string) error {
	path := filepath.Join(r.dir, filepath.FromSlash(name)+scriptExtension)

	info, err := r.fs.Stat(path)
	if err != nil {
		if content, ok := r.embedded[name]; ok {
			r.scripts[name] = r.buildEmbedded(name, content)
			slog.Info("Restored embedded script", "script", name)
			return nil
		}
		delete(r.scripts, name)
		slog.Info("Removed script with no remaining source", "script", name)
		return nil
	}

	manifests, err := r.loadManifests()
	if err != nil {
		return err
	}
	script, err := r.loadExternal(name, path, info, manifests)
	if err != nil {
		return err
	}

	r.scripts[name] = script
	slog.Info("Reloaded external script", "script", name, "path", path)
	return nil
}

// ListScripts returns the names of all available scripts, sorted.
func (r *Registry) ListScripts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scripts))
	for name := range r.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartWatcher begins monitoring the scripts directory for changes,
// reloading scripts as their files change. Watching requires the real
// filesystem; on any other filesystem it reports an error.
func (r *Registry) StartWatcher(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcherActive {
		slog.Debug("Script watcher already active")
		return nil
	}
	if _, ok := r.fs.(*afero.OsFs); !ok {
		return fmt.Errorf("hot reload requires the OS filesystem")
	}
	if ok, err := afero.DirExists(r.fs, r.dir); err != nil || !ok {
		slog.Debug("Scripts directory does not exist, skipping watcher setup", "path", r.dir)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}

	err = afero.Walk(r.fs, r.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	r.watcher = watcher
	r.watcherActive = true
	go r.watchFiles(ctx)

	slog.Info("Started script hot-reload watcher", "directory", r.dir)
	return nil
}

// StopWatcher stops the file system watcher.
func (r *Registry) StopWatcher() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
		r.watcherActive = false
		slog.Info("Script watcher stopped")
	}
}

// watchFiles handles file system events until the context ends or the
// watcher closes.
func (r *Registry) watchFiles(ctx context.Context) {
	defer r.StopWatcher()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handleFileEvent(event)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Script watcher error", "error", err)
		}
	}
}

// handleFileEvent reloads the script behind a changed file. Manifest edits
// reload everything, since any script's metadata may have changed.
func (r *Registry) handleFileEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) == manifestFileName {
		slog.Info("Manifest changed, reloading all scripts", "path", event.Name)
		if err := r.LoadScripts(); err != nil {
			slog.Error("Failed to reload scripts after manifest change", "error", err)
		}
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), scriptExtension) {
		return
	}

	name, err := r.scriptName(event.Name)
	if err != nil {
		slog.Debug("Ignoring event outside scripts directory", "path", event.Name, "error", err)
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0:
		slog.Info("Script file changed, reloading", "script", name, "op", event.Op.String())
		if err := r.ReloadScript(name); err != nil {
			slog.Error("Failed to reload script", "script", name, "error", err)
		}
	}
}

// scriptName derives a registry name from a file path: the slash-separated
// path relative to the scripts directory without the extension.
func (r *Registry) scriptName(path string) (string, error) {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %s is not within the scripts directory", path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel), nil
}

// loadExternal reads one script file and applies its manifest entry.
func (r *Registry) loadExternal(name, path string, info fs.FileInfo, manifests map[string]manifest) (*Script, error) {
	content, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file %s: %w", path, err)
	}

	script := &Script{
		Name:         name,
		Content:      string(content),
		Source:       SourceExternal,
		Path:         path,
		LastModified: info.ModTime(),
		Checksum:     checksum(string(content)),
	}

	dir := filepath.ToSlash(filepath.Dir(path))
	if m, ok := manifests[dir]; ok {
		if entry, ok := m.Scripts[filepath.Base(name)]; ok {
			script.Description = entry.Description
			if entry.Timeout != "" {
				d, err := time.ParseDuration(entry.Timeout)
				if err != nil {
					return nil, fmt.Errorf("invalid timeout for script %s: %w", name, err)
				}
				script.Timeout = d
			}
		}
	}
	return script, nil
}

// loadManifests parses and validates every manifest file under the scripts
// directory, keyed by containing directory.
func (r *Registry) loadManifests() (map[string]manifest, error) {
	out := make(map[string]manifest)

	err := afero.Walk(r.fs, r.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Base(path) != manifestFileName {
			return nil
		}

		data, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return fmt.Errorf("failed to read manifest %s: %w", path, err)
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
		if err := r.validate.Struct(m); err != nil {
			return fmt.Errorf("invalid manifest %s: %w", path, err)
		}
		out[filepath.ToSlash(filepath.Dir(path))] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// buildEmbedded constructs the Script record for a built-in script.
func (r *Registry) buildEmbedded(name, content string) *Script {
	return &Script{
		Name:         name,
		Content:      content,
		Source:       SourceEmbedded,
		LastModified: time.Now(),
		Checksum:     checksum(content),
	}
}

// checksum fingerprints script content for change detection.
func checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
