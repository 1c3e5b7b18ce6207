package transfer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-sync/internal/logging"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.png")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func testContext(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	data := []byte("a perfectly ordinary icon payload")
	up, err := NewUpload(writeTempFile(t, data), logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), up.Size)
	assert.Equal(t, Checksum(data), up.MD5)
	assert.NotZero(t, up.Port)

	serveCtx := testContext(t, 5*time.Second)
	serveErr := make(chan error, 1)
	go func() { serveErr <- up.Serve(serveCtx) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(up.Port))
	got, err := Download(testContext(t, 5*time.Second), addr, up.Size, up.MD5)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, <-serveErr)
}

func TestDownloadChecksumMismatch(t *testing.T) {
	data := []byte("payload bytes")
	up, err := NewUpload(writeTempFile(t, data), logging.Discard())
	require.NoError(t, err)

	serveCtx := testContext(t, 5*time.Second)
	go func() { _ = up.Serve(serveCtx) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(up.Port))
	_, err = Download(testContext(t, 5*time.Second), addr, up.Size, "deadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestDownloadShortRead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("tiny"))
		conn.Close()
	}()

	addr := ln.Addr().String()
	_, err = Download(testContext(t, 2*time.Second), addr, 1024, "")
	require.Error(t, err)
}

func TestDownloadStalledPeerTimesOut(t *testing.T) {
	// Peer accepts the connection and never sends a byte.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(3 * time.Second)
	}()

	start := time.Now()
	_, err = Download(testContext(t, 200*time.Millisecond), ln.Addr().String(), 16, "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDownloadRefusesOversizePayload(t *testing.T) {
	_, err := Download(testContext(t, time.Second), "127.0.0.1:1", MaxPayloadSize+1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing payload")
}

func TestUploadRejectsDirectoryAndMissingFile(t *testing.T) {
	_, err := NewUpload(t.TempDir(), logging.Discard())
	require.Error(t, err)

	_, err = NewUpload(filepath.Join(t.TempDir(), "absent.png"), logging.Discard())
	require.Error(t, err)
}

func TestUploadContextExpiryClosesChannel(t *testing.T) {
	up, err := NewUpload(writeTempFile(t, []byte("data")), logging.Discard())
	require.NoError(t, err)

	err = up.Serve(testContext(t, 100*time.Millisecond))
	require.Error(t, err)

	// The port is released afterwards.
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(up.Port))
	var d net.Dialer
	conn, err := d.DialContext(testContext(t, time.Second), "tcp", addr)
	if err == nil {
		conn.Close()
		t.Fatalf("expected payload channel %s to be closed", addr)
	}
}
