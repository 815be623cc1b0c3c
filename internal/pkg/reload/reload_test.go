package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/endorses/trustpeer/internal/pkg/loader"
	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, path, tag string) {
	t.Helper()
	content := "trusted:\n  - src_ip: 10.0.0.5\n    proto: udp\n    tag: " + tag + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func currentTag(store *trusted.Store) string {
	tbl := store.Current()
	if tbl == nil {
		return ""
	}
	res, err := tbl.Match(trusted.Query{Source: "10.0.0.5", Protocol: trusted.ProtoUDP})
	if err != nil {
		return ""
	}
	return res.Tag()
}

func newReloader(t *testing.T, path string, watch bool) (*Reloader, *trusted.Store, *metrics.Collector) {
	t.Helper()
	store := trusted.NewStore(nil)
	col := metrics.New()
	cfg := Config{
		Store:    store,
		Source:   loader.FileSource{Path: path},
		Options:  loader.Options{Table: trusted.DefaultConfig()},
		Metrics:  col,
		Debounce: 20 * time.Millisecond,
	}
	if watch {
		cfg.WatchPath = path
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r, store, col
}

func TestNew_RequiresStoreAndSource(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestReloadNow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted.yaml")
	writeTable(t, path, "v1")
	r, store, col := newReloader(t, path, false)

	report, err := r.ReloadNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, "v1", currentTag(store))

	// A broken file keeps the published generation
	require.NoError(t, os.WriteFile(path, []byte("trusted:\n  - src_ip: 10.0.0.5\n    proto: carrier-pigeon\n"), 0644))
	_, err = r.ReloadNow(context.Background())
	assert.ErrorIs(t, err, trusted.ErrUnknownProtocol)
	assert.Equal(t, "v1", currentTag(store))

	families, err := col.Registry().Gather()
	require.NoError(t, err)
	var ok, failed float64
	for _, f := range families {
		if f.GetName() != "trustpeer_reloads_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			switch m.GetLabel()[0].GetValue() {
			case "ok":
				ok = m.GetCounter().GetValue()
			case "failed":
				failed = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, ok)
	assert.Equal(t, 1.0, failed)
	n, err := testutil.GatherAndCount(col.Registry(), "trustpeer_table_entries")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_Trigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted.yaml")
	writeTable(t, path, "v1")
	r, store, _ := newReloader(t, path, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Trigger()
	r.Trigger() // coalesced, must not block
	assert.Eventually(t, func() bool { return currentTag(store) == "v1" }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_WatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted.yaml")
	writeTable(t, path, "v1")
	r, store, _ := newReloader(t, path, true)
	_, err := r.ReloadNow(context.Background())
	require.NoError(t, err)
	first := store.Current()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Give the watcher a moment to register before writing
	time.Sleep(50 * time.Millisecond)
	writeTable(t, path, "v2")

	assert.Eventually(t, func() bool { return currentTag(store) == "v2" }, 3*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, first.Generation(), store.Current().Generation())

	// Readers holding the old generation still see consistent data
	res, err := first.Match(trusted.Query{Source: "10.0.0.5", Protocol: trusted.ProtoUDP})
	require.NoError(t, err)
	assert.Equal(t, "v1", res.Tag())

	cancel()
	require.NoError(t, <-done)
}
