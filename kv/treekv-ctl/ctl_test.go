package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/server"
	"github.com/treekv/treekv/kv/storage"
)

func startServer(t *testing.T) (*server.Server, *storage.MemStorage) {
	store := storage.NewMemStorage()
	srv := server.NewServer(config.NewTestConfig(os.TempDir()), store)
	require.Nil(t, srv.Start())
	return srv, store
}

func openDirect(t *testing.T, srv *server.Server) executor {
	f := &targetFlags{addr: srv.Addr(), timeout: config.DefaultClientTimeout}
	exec, err := f.open()
	require.Nil(t, err)
	return exec
}

func TestParseLine(t *testing.T) {
	words, ok := parseLine(`  PUT  key   "value" `)
	assert.True(t, ok)
	assert.Equal(t, []string{"PUT", "key", "value"}, words)

	_, ok = parseLine("   ")
	assert.False(t, ok)
	_, ok = parseLine(`GET "unterminated`)
	assert.False(t, ok)
}

func TestGenPairsAndLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "treekv-ctl")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	words := filepath.Join(dir, "words.txt")
	pairs := filepath.Join(dir, "pairs.txt")
	require.Nil(t, ioutil.WriteFile(words, []byte("Alpha\nBeta\nGamma\nDelta\nEpsilon\n"), 0644))
	require.Nil(t, genPairs(words, pairs, 12, 99))

	data, err := ioutil.ReadFile(pairs)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 12)

	srv, store := startServer(t)
	defer srv.Stop()
	exec := openDirect(t, srv)
	defer exec.Close()

	written, failed, err := loadPairs(exec, pairs)
	require.Nil(t, err)
	assert.Equal(t, 12, written)
	assert.Equal(t, 0, failed)
	dump := store.Dump()
	assert.Len(t, dump, 12)
	for _, line := range lines {
		kv := strings.Split(line, "=")
		assert.Equal(t, kv[1], dump[kv[0]])
	}
}

func TestBench(t *testing.T) {
	srv, _ := startServer(t)
	defer srv.Stop()
	exec := openDirect(t, srv)
	defer exec.Close()

	res := runBench(exec, nil, 200, 20, 0.5)
	total := len(res.latencies[command.Read]) + len(res.latencies[command.Write])
	assert.Equal(t, 200, total)
	assert.Equal(t, 0, res.failures[command.Read]+res.failures[command.Write])

	var buf bytes.Buffer
	res.render(&buf)
	assert.True(t, strings.Contains(buf.String(), "P99(MS)") || strings.Contains(buf.String(), "P99(ms)"))
	assert.True(t, strings.Contains(buf.String(), "Takes(s)"))
}

func TestDirectReportsServerError(t *testing.T) {
	srv, _ := startServer(t)
	exec := openDirect(t, srv)
	defer exec.Close()
	assert.Equal(t, command.Null, exec.Do(globalContext, "GET a"))
	srv.Stop()
	<-srv.Done()
	assert.Equal(t, command.ServerError, exec.Do(globalContext, "GET a"))
}
