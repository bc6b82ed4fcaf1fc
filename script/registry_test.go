package script

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewRegistryWithFs(fs, "scripts"), fs
}

func TestRegistry_LoadScripts_External(t *testing.T) {
	reg, fs := newTestRegistry(t)

	require.NoError(t, afero.WriteFile(fs, "scripts/hello.js", []byte(`"hello"`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "scripts/jobs/cleanup.js", []byte(`1 + 1`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "scripts/jobs/manifest.json", []byte(`{
		"scripts": {
			"cleanup": {"description": "removes stale rows", "timeout": "2s"}
		}
	}`), 0o644))

	require.NoError(t, reg.LoadScripts())

	hello, err := reg.GetScript("hello")
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, hello.Content)
	assert.Equal(t, SourceExternal, hello.Source)
	assert.NotEmpty(t, hello.Checksum)
	assert.Zero(t, hello.Timeout)

	cleanup, err := reg.GetScript("jobs/cleanup")
	require.NoError(t, err)
	assert.Equal(t, "removes stale rows", cleanup.Description)
	assert.Equal(t, 2*time.Second, cleanup.Timeout)
}

func TestRegistry_GetScript_NotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.LoadScripts())

	_, err := reg.GetScript("missing")
	require.Error(t, err)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, ErrorTypeNotFound, scriptErr.Type)
}

func TestRegistry_EmbeddedShadowedByExternal(t *testing.T) {
	reg, fs := newTestRegistry(t)
	reg.RegisterEmbedded("greet", `"embedded"`)

	require.NoError(t, afero.WriteFile(fs, "scripts/greet.js", []byte(`"external"`), 0o644))
	require.NoError(t, reg.LoadScripts())

	greet, err := reg.GetScript("greet")
	require.NoError(t, err)
	assert.Equal(t, `"external"`, greet.Content)
	assert.Equal(t, SourceExternal, greet.Source)
}

func TestRegistry_ReloadScript_RestoresEmbeddedAfterDelete(t *testing.T) {
	reg, fs := newTestRegistry(t)
	reg.RegisterEmbedded("greet", `"embedded"`)

	require.NoError(t, afero.WriteFile(fs, "scripts/greet.js", []byte(`"external"`), 0o644))
	require.NoError(t, reg.LoadScripts())

	require.NoError(t, fs.Remove("scripts/greet.js"))
	require.NoError(t, reg.ReloadScript("greet"))

	greet, err := reg.GetScript("greet")
	require.NoError(t, err)
	assert.Equal(t, `"embedded"`, greet.Content)
	assert.Equal(t, SourceEmbedded, greet.Source)
}

func TestRegistry_ReloadScript_PicksUpChanges(t *testing.T) {
	reg, fs := newTestRegistry(t)

	require.NoError(t, afero.WriteFile(fs, "scripts/calc.js", []byte(`1`), 0o644))
	require.NoError(t, reg.LoadScripts())

	require.NoError(t, afero.WriteFile(fs, "scripts/calc.js", []byte(`2`), 0o644))
	require.NoError(t, reg.ReloadScript("calc"))

	calc, err := reg.GetScript("calc")
	require.NoError(t, err)
	assert.Equal(t, `2`, calc.Content)
}

func TestRegistry_ReloadScript_UnknownWithNoSourceRemoves(t *testing.T) {
	reg, fs := newTestRegistry(t)

	require.NoError(t, afero.WriteFile(fs, "scripts/gone.js", []byte(`0`), 0o644))
	require.NoError(t, reg.LoadScripts())
	require.NoError(t, fs.Remove("scripts/gone.js"))

	require.NoError(t, reg.ReloadScript("gone"))
	_, err := reg.GetScript("gone")
	assert.Error(t, err)
}

func TestRegistry_ListScripts_Sorted(t *testing.T) {
	reg, fs := newTestRegistry(t)
	reg.RegisterEmbedded("zeta", `0`)

	require.NoError(t, afero.WriteFile(fs, "scripts/alpha.js", []byte(`0`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "scripts/jobs/mid.js", []byte(`0`), 0o644))
	require.NoError(t, reg.LoadScripts())

	assert.Equal(t, []string{"alpha", "jobs/mid", "zeta"}, reg.ListScripts())
}

func TestRegistry_LoadScripts_InvalidManifest(t *testing.T) {
	reg, fs := newTestRegistry(t)

	require.NoError(t, afero.WriteFile(fs, "scripts/a.js", []byte(`0`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "scripts/manifest.json", []byte(`{not json`), 0o644))

	assert.Error(t, reg.LoadScripts())
}

func TestRegistry_LoadScripts_BadManifestTimeout(t *testing.T) {
	reg, fs := newTestRegistry(t)

	require.NoError(t, afero.WriteFile(fs, "scripts/a.js", []byte(`0`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "scripts/manifest.json", []byte(`{
		"scripts": {"a": {"timeout": "not-a-duration"}}
	}`), 0o644))

	// The manifest parses but the script it describes fails to load, so the
	// script is skipped rather than failing the whole load.
	require.NoError(t, reg.LoadScripts())
	_, err := reg.GetScript("a")
	assert.Error(t, err)
}

func TestRegistry_MissingDirectoryIsNotAnError(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.RegisterEmbedded("only", `1`)

	require.NoError(t, reg.LoadScripts())
	assert.Equal(t, []string{"only"}, reg.ListScripts())
}

func TestRegistry_StartWatcher_RequiresOsFs(t *testing.T) {
	reg, fs := newTestRegistry(t)
	require.NoError(t, afero.WriteFile(fs, "scripts/a.js", []byte(`0`), 0o644))

	err := reg.StartWatcher(t.Context())
	assert.Error(t, err)
}
