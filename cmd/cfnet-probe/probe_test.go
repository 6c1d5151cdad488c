package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfnet-project/cfnet-go/pkg/log"
)

// syncBuffer is a bytes.Buffer safe for use by a serving goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewProbeOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "cfnet.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("tls:\n  tries: 2\n  timeout: 1s\nipc:\n  socket_path: /from/config.sock\n"), 0644))

	p, err := newProbe(options{
		configFile:  cfgFile,
		socket:      "/from/flag.sock",
		logLevel:    "warn",
		protocolLog: filepath.Join(dir, "probe.clog"),
	}, &bytes.Buffer{})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "/from/flag.sock", p.cfg.IPC.SocketPath)
	assert.Equal(t, 2, p.cfg.TLS.Tries)
	assert.Equal(t, "warn", p.cfg.Log.Level)
	assert.IsType(t, &log.FileLogger{}, p.plog)
	assert.FileExists(t, filepath.Join(dir, "probe.clog"))
}

func TestNewProbeDebugLogsProtocol(t *testing.T) {
	p, err := newProbe(options{
		logLevel:    "debug",
		protocolLog: filepath.Join(t.TempDir(), "probe.clog"),
	}, &bytes.Buffer{})
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &log.MultiLogger{}, p.plog)
}

func TestNewProbeRejectsBadLevel(t *testing.T) {
	_, err := newProbe(options{logLevel: "chatty"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestGenCert(t *testing.T) {
	var out bytes.Buffer
	dir := filepath.Join(t.TempDir(), "certs")
	p, err := newProbe(options{certDir: dir}, &out)
	require.NoError(t, err)

	require.NoError(t, p.run(context.Background(), "gencert", nil))
	assert.Contains(t, out.String(), "Fingerprint: ")
	assert.FileExists(t, filepath.Join(dir, "cert.pem"))
	assert.FileExists(t, filepath.Join(dir, "key.pem"))

	// A second run reuses the stored identity.
	first := out.String()
	out.Reset()
	require.NoError(t, p.run(context.Background(), "gencert", nil))
	assert.Equal(t, first, out.String())
}

func TestIPCServeSendShare(t *testing.T) {
	dir := t.TempDir()
	socket := filepath.Join(dir, "probe.sock")
	shared := filepath.Join(dir, "shared.txt")
	require.NoError(t, os.WriteFile(shared, []byte("shared content"), 0600))

	out := &syncBuffer{}
	server, err := newProbe(options{socket: socket, count: 2}, out)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- server.run(ctx, "ipc-serve", nil) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	client, err := newProbe(options{socket: socket}, &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, client.run(ctx, "ipc-send", []string{"hello probe"}))
	require.NoError(t, client.run(ctx, "ipc-share", []string{shared}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("ipc-serve did not stop after two messages")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	pid := os.Getpid()
	assert.Equal(t, "text from "+strconv.Itoa(pid)+": \"hello probe\"", lines[0])
	assert.Equal(t, "file from "+strconv.Itoa(pid)+": \"shared content\"", lines[1])
}

func TestRunUsageErrors(t *testing.T) {
	p, err := newProbe(options{}, &bytes.Buffer{})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, p.run(ctx, "tls-send", nil))
	assert.Error(t, p.run(ctx, "ipc-send", []string{"a", "b"}))
	assert.Error(t, p.run(ctx, "ipc-share", nil))
	assert.Error(t, p.run(ctx, "ipc-send", []string{"no socket configured"}))
	assert.Error(t, p.run(ctx, "bogus", nil))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	p, err := newProbe(options{}, &out)
	require.NoError(t, err)

	require.NoError(t, p.run(context.Background(), "version", nil))
	assert.Equal(t, "cfnet protocol 1.0 (ALPN cfnet/1)\n", out.String())
}
