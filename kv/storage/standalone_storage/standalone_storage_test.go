package standalone_storage

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treekv/treekv/kv/btree"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/storage"
	"github.com/treekv/treekv/kv/wal"
)

var _ storage.Storage = (*StandAloneStorage)(nil)

func newTestStorage(t *testing.T) (*StandAloneStorage, *config.Config, func()) {
	dir, err := ioutil.TempDir("", "treekv-storage")
	require.Nil(t, err)
	conf := config.NewTestConfig(dir)
	conf.StoreAddr = "127.0.0.1:6379"
	s, err := NewStandAloneStorage(conf)
	require.Nil(t, err)
	require.Nil(t, s.Start())
	return s, conf, func() { os.RemoveAll(dir) }
}

func TestStartCreatesLogFile(t *testing.T) {
	s, conf, cleanup := newTestStorage(t)
	defer cleanup()
	defer s.Stop()

	_, err := os.Stat(filepath.Join(conf.DataDir, "6379-tree-log.txt"))
	assert.Nil(t, err)
	assert.Equal(t, 0, s.Stats().Keys)
}

func TestPutGetContains(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()
	defer s.Stop()

	_, replaced, err := s.Put("a", "x")
	require.Nil(t, err)
	assert.False(t, replaced)

	old, replaced, err := s.Put("a", "y")
	require.Nil(t, err)
	assert.True(t, replaced)
	assert.Equal(t, "x", old)

	v, ok, err := s.Get("a")
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "y", v)

	ok, err = s.Contains("b")
	require.Nil(t, err)
	assert.False(t, ok)

	_, _, err = s.Put("", "x")
	assert.NotNil(t, err)
}

func TestReconstructFromLog(t *testing.T) {
	s, conf, cleanup := newTestStorage(t)
	defer cleanup()

	expected := make(map[string]string)
	for i := 0; i < 237; i++ {
		k := fmt.Sprintf("key%03d", i%150)
		v := fmt.Sprintf("value%d", i)
		_, _, err := s.Put(k, v)
		require.Nil(t, err)
		expected[k] = v
	}
	require.Nil(t, s.Stop())

	restored, err := NewStandAloneStorage(conf)
	require.Nil(t, err)
	require.Nil(t, restored.Start())
	defer restored.Stop()

	assert.Equal(t, len(expected), restored.Stats().Keys)
	for k, v := range expected {
		got, ok, err := restored.Get(k)
		require.Nil(t, err)
		assert.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
	assert.Nil(t, restored.Verify())

	// Replay must not append the replayed entries to the log a second time.
	assert.Equal(t, 0, restored.Stats().LogPending)
}

func TestReplaySkipsAnomalies(t *testing.T) {
	dir, err := ioutil.TempDir("", "treekv-storage")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	conf := config.NewTestConfig(dir)
	conf.StoreAddr = "127.0.0.1:6400"
	path := filepath.Join(dir, wal.FileName("6400"))
	require.Nil(t, ioutil.WriteFile(path, []byte("1=a\n2=b\nbad line\n3=c=d\n1=z\n"), 0644))

	s, err := NewStandAloneStorage(conf)
	require.Nil(t, err)
	require.Nil(t, s.Start())
	defer s.Stop()

	v, ok, err := s.Get("1")
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "z", v)
	assert.Equal(t, 2, s.Stats().Keys)
}

func TestDisabledLog(t *testing.T) {
	dir, err := ioutil.TempDir("", "treekv-storage")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	conf := config.NewTestConfig(dir)
	conf.WALEnabled = false
	s, err := NewStandAloneStorage(conf)
	require.Nil(t, err)
	require.Nil(t, s.Start())
	_, _, err = s.Put("a", "b")
	require.Nil(t, err)
	require.Nil(t, s.Stop())

	files, err := ioutil.ReadDir(dir)
	require.Nil(t, err)
	assert.Len(t, files, 0)
	assert.Equal(t, "", s.Stats().LogFile)
}

func TestInvalidConfig(t *testing.T) {
	conf := config.NewTestConfig(os.TempDir())
	conf.Degree = 1
	_, err := NewStandAloneStorage(conf)
	assert.Equal(t, btree.ErrInvalidDegree, errors.Cause(err))

	conf = config.NewTestConfig(os.TempDir())
	conf.WALBufferSize = 3
	_, err = NewStandAloneStorage(conf)
	assert.Equal(t, wal.ErrInvalidBufferSize, errors.Cause(err))
}

func TestStats(t *testing.T) {
	s, _, cleanup := newTestStorage(t)
	defer cleanup()
	defer s.Stop()

	for i := 1; i <= 10; i++ {
		_, _, err := s.Put(fmt.Sprint(i), string(rune('a'+i-1)))
		require.Nil(t, err)
	}
	st := s.Stats()
	assert.Equal(t, 10, st.Keys)
	assert.Equal(t, 5, st.Degree)
	assert.True(t, st.Nodes >= 1)
	assert.True(t, st.Depth >= 1)
	// The ring holds ten entries, so the tenth put flushed all of them.
	assert.Equal(t, 0, st.LogPending)
	assert.True(t, st.LogSize > 0)
}
