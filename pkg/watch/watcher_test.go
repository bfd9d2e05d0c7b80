package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-node/lwm2m-go/pkg/config"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/registry"
)

const initial = `
objects:
  device:
    0:
      manuf: acme
`

type reload struct {
	n   int
	err error
}

func setup(t *testing.T) (*Watcher, *model.Tree, string, chan reload) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	f, err := config.Load(path)
	require.NoError(t, err)
	tree := model.NewTree(registry.New())
	require.NoError(t, f.Objects.Apply(tree))

	w, err := New(path, tree, nil)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)

	reloads := make(chan reload, 8)
	w.OnReload = func(n int, err error) { reloads <- reload{n, err} }

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return w, tree, path, reloads
}

func waitReload(t *testing.T, reloads <-chan reload) reload {
	t.Helper()
	select {
	case r := <-reloads:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
		return reload{}
	}
}

func TestNewMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"), model.NewTree(registry.New()), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReloadOnWrite(t *testing.T) {
	_, tree, path, reloads := setup(t)

	require.NoError(t, os.WriteFile(path, []byte(`
objects:
  device:
    0:
      manuf: acme-industries
      serial: SN-1
`), 0o600))

	r := waitReload(t, reloads)
	require.NoError(t, r.err)
	assert.Equal(t, 2, r.n)

	v, err := tree.Dump(context.Background(), model.ResourcePath("device", 0, "manuf"))
	require.NoError(t, err)
	assert.Equal(t, "acme-industries", v)
}

func TestReloadInvalidKeepsTree(t *testing.T) {
	_, tree, path, reloads := setup(t)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o600))

	r := waitReload(t, reloads)
	assert.ErrorIs(t, r.err, config.ErrInvalidConfig)

	v, err := tree.Dump(context.Background(), model.ResourcePath("device", 0, "manuf"))
	require.NoError(t, err)
	assert.Equal(t, "acme", v)
}

func TestReloadIgnoresOtherFiles(t *testing.T) {
	w, _, _, reloads := setup(t)

	other := filepath.Join(filepath.Dir(w.Path()), "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("x: 1\n"), 0o600))

	select {
	case r := <-reloads:
		t.Errorf("unexpected reload %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}
