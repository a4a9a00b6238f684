package server_test

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tlqiu/quic3/internal/client"
	"github.com/tlqiu/quic3/internal/config"
	"github.com/tlqiu/quic3/internal/protocol"
	"github.com/tlqiu/quic3/internal/server"
	"github.com/tlqiu/quic3/internal/store"
	"github.com/tlqiu/quic3/internal/transfer"
	"github.com/tlqiu/quic3/internal/transport"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type testEnv struct {
	cfg       *config.Config
	outputDir string
	transfers *store.TransferStore
}

// startServer runs a server on a loopback port with a fresh identity,
// output directory, and ledger, and returns a config pre-pointed at it.
func startServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewDefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.CertFile = filepath.Join(dir, "server-cert.pem")
	cfg.Server.KeyFile = filepath.Join(dir, "server-key.pem")
	cfg.Server.OutputDir = filepath.Join(dir, "received")
	cfg.Server.DBPath = filepath.Join(dir, "transfers.db")

	if err := os.MkdirAll(cfg.Server.OutputDir, 0755); err != nil {
		t.Fatalf("creating output dir: %v", err)
	}

	db, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	transfers := store.NewTransferStore(db)

	srv, err := server.New(cfg, testLogger(), transfers)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	cfg.Client.ServerAddr = srv.Addr().String()
	cfg.Client.ServerName = "localhost"
	cfg.Client.CACertFile = cfg.Server.CertFile

	return &testEnv{cfg: cfg, outputDir: cfg.Server.OutputDir, transfers: transfers}
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	return path
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	rng := rand.New(rand.NewSource(int64(n)))
	if _, err := rng.Read(data); err != nil {
		t.Fatalf("generating test data: %v", err)
	}
	return data
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestTransferRoundTrip(t *testing.T) {
	env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sizes := []int{1, 100, 64 * 1024, 64*1024 + 1, 10 * 1024 * 1024}
	for _, size := range sizes {
		data := randomBytes(t, size)
		src := writeTempFile(t, "source.bin", data)

		res, err := client.New(env.cfg, testLogger()).Send(ctx, src)
		if err != nil {
			t.Fatalf("Send failed for size %d: %v", size, err)
		}
		if res.Sent != int64(size) {
			t.Errorf("expected %d bytes sent, got %d", size, res.Sent)
		}
		if res.Acked != uint64(size) {
			t.Errorf("expected server to ack %d bytes, got %d", size, res.Acked)
		}

		stored, err := os.ReadFile(filepath.Join(env.outputDir, "source.bin"))
		if err != nil {
			t.Fatalf("reading stored file for size %d: %v", size, err)
		}
		if !bytes.Equal(stored, data) {
			t.Errorf("stored content differs from source at size %d", size)
		}

		if err := os.Remove(filepath.Join(env.outputDir, "source.bin")); err != nil {
			t.Fatalf("cleaning output dir: %v", err)
		}
	}
}

func TestTransferEmptyFile(t *testing.T) {
	env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	src := writeTempFile(t, "empty.bin", nil)
	res, err := client.New(env.cfg, testLogger()).Send(ctx, src)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.Sent != 0 || res.Acked != 0 {
		t.Errorf("expected zero-byte transfer, got sent=%d acked=%d", res.Sent, res.Acked)
	}

	stat, err := os.Stat(filepath.Join(env.outputDir, "empty.bin"))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if stat.Size() != 0 {
		t.Errorf("expected empty output file, got %d bytes", stat.Size())
	}
}

func TestConcurrentTransfersGetUniqueNames(t *testing.T) {
	env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	contents := [][]byte{
		bytes.Repeat([]byte{'a'}, 300*1024),
		bytes.Repeat([]byte{'b'}, 300*1024),
	}

	errChan := make(chan error, len(contents))
	for _, data := range contents {
		go func(data []byte) {
			src := writeTempFile(t, "same-name.bin", data)
			_, err := client.New(env.cfg, testLogger()).Send(ctx, src)
			errChan <- err
		}(data)
	}
	for range contents {
		if err := <-errChan; err != nil {
			t.Fatalf("concurrent Send failed: %v", err)
		}
	}

	entries, err := os.ReadDir(env.outputDir)
	if err != nil {
		t.Fatalf("reading output dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 output files, got %d", len(entries))
	}

	seen := map[byte]bool{}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(env.outputDir, entry.Name()))
		if err != nil {
			t.Fatalf("reading %s: %v", entry.Name(), err)
		}
		if len(data) != 300*1024 {
			t.Errorf("%s: expected 300 KiB, got %d bytes", entry.Name(), len(data))
		}
		for _, b := range data {
			if b != data[0] {
				t.Errorf("%s: interleaved content", entry.Name())
				break
			}
		}
		seen[data[0]] = true
	}
	if !seen['a'] || !seen['b'] {
		t.Error("expected one file of 'a's and one of 'b's")
	}
}

func TestResetMidTransferLeavesNoPartialFile(t *testing.T) {
	env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tlsConf, err := transport.ClientTLSConfig(env.cfg.Client.CACertFile, env.cfg.Client.ServerName)
	if err != nil {
		t.Fatalf("ClientTLSConfig failed: %v", err)
	}
	sess, err := transport.New(tlsConf, nil).Dial(ctx, env.cfg.Client.ServerAddr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = sess.Close() }()

	stream, err := sess.OpenStream(ctx)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}

	header := protocol.Header{Name: "interrupted.bin", Size: 1024 * 1024}
	if err := protocol.WriteHeader(stream, header); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	if _, err := stream.Write(randomBytes(t, 64*1024)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Reset instead of a clean half-close: the server must treat this as a
	// failed transfer, not a short valid file.
	stream.CancelWrite(1)

	waitFor(t, 5*time.Second, func() bool {
		rows, err := env.transfers.Recent(10)
		if err != nil {
			return false
		}
		return len(rows) == 1 && rows[0].Status == store.StatusFailed
	})

	entries, err := os.ReadDir(env.outputDir)
	if err != nil {
		t.Fatalf("reading output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty output dir, found %d entries", len(entries))
	}
}

func TestClientMissingFileFailsBeforeDial(t *testing.T) {
	cfg := config.NewDefaultConfig()
	// Nothing is listening here; an IO failure proves no dial was attempted.
	cfg.Client.ServerAddr = "127.0.0.1:1"

	_, err := client.New(cfg, testLogger()).Send(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !transfer.IsKind(err, transfer.KindIO) {
		t.Errorf("expected KindIO, got %v", transfer.KindOf(err))
	}
}

func TestClientRejectsWrongTrustAnchor(t *testing.T) {
	env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	otherDir := t.TempDir()
	if _, err := transport.EnsureServerCert(
		filepath.Join(otherDir, "cert.pem"), filepath.Join(otherDir, "key.pem"),
		[]string{"localhost"}); err != nil {
		t.Fatalf("EnsureServerCert failed: %v", err)
	}
	env.cfg.Client.CACertFile = filepath.Join(otherDir, "cert.pem")

	src := writeTempFile(t, "secret.bin", []byte("do not deliver"))
	_, err := client.New(env.cfg, testLogger()).Send(ctx, src)
	if err == nil {
		t.Fatal("expected handshake failure with wrong trust anchor")
	}
	if !transfer.IsKind(err, transfer.KindTransport) {
		t.Errorf("expected KindTransport, got %v", transfer.KindOf(err))
	}

	entries, err := os.ReadDir(env.outputDir)
	if err != nil {
		t.Fatalf("reading output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected nothing written to disk, found %d entries", len(entries))
	}
}

func TestTransfersAreRecorded(t *testing.T) {
	env := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data := randomBytes(t, 2048)
	src := writeTempFile(t, "ledgered.bin", data)
	if _, err := client.New(env.cfg, testLogger()).Send(ctx, src); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		rows, err := env.transfers.Recent(10)
		return err == nil && len(rows) == 1
	})

	rows, err := env.transfers.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	row := rows[0]
	if row.Status != store.StatusReceived {
		t.Errorf("expected status %q, got %q", store.StatusReceived, row.Status)
	}
	if row.Name != "ledgered.bin" || row.Bytes != 2048 || row.DeclaredSize != 2048 {
		t.Errorf("unexpected ledger row: %+v", row)
	}
}
