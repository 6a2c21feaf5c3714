package acquire

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dailete/internal/services"
)

type requestLog struct {
	mu     sync.Mutex
	events []string
	agents []string
	refs   []string
}

func (l *requestLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func newEpisodeServer(t *testing.T, log *requestLog, status func(ua string) int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		log.mu.Lock()
		log.agents = append(log.agents, ua)
		log.refs = append(log.refs, r.Header.Get("Referer"))
		log.mu.Unlock()
		log.add("request:" + ua)
		code := http.StatusOK
		if status != nil {
			code = status(ua)
		}
		w.WriteHeader(code)
		_, _ = io.WriteString(w, "audio-for-"+ua)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAcquireFetchesLocalThenRemoteWithDistinctFingerprints(t *testing.T) {
	log := &requestLog{}
	server := newEpisodeServer(t, log, nil)
	work := t.TempDir()

	var slept time.Duration
	fetcher := New(server.Client(), server.Client(), work, nil,
		WithDelay(45*time.Second),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			slept = d
			log.add("sleep")
			return nil
		}),
		WithFingerprints(Fingerprint{UserAgent: "local-ua", Referer: "https://a.example"}, Fingerprint{UserAgent: "remote-ua", Referer: "https://b.example"}),
	)

	captures, err := fetcher.Acquire(context.Background(), Job{PodcastID: "pod", EpisodeID: "ep1", URL: server.URL + "/ep1.mp3"})
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if slept != 45*time.Second {
		t.Fatalf("expected 45s delay, got %s", slept)
	}
	want := []string{"request:local-ua", "sleep", "request:remote-ua"}
	if len(log.events) != len(want) {
		t.Fatalf("unexpected events %v", log.events)
	}
	for i := range want {
		if log.events[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (all %v)", i, log.events[i], want[i], log.events)
		}
	}
	if log.refs[0] == log.refs[1] {
		t.Fatalf("expected distinct referers, got %v", log.refs)
	}

	expected := CapturePaths(work, "pod", "ep1")
	if captures != expected {
		t.Fatalf("captures = %+v, want %+v", captures, expected)
	}
	local, err := os.ReadFile(captures.Local)
	if err != nil {
		t.Fatalf("read local: %v", err)
	}
	if string(local) != "audio-for-local-ua" {
		t.Fatalf("unexpected local body %q", local)
	}
	remote, err := os.ReadFile(captures.Remote)
	if err != nil {
		t.Fatalf("read remote: %v", err)
	}
	if string(remote) != "audio-for-remote-ua" {
		t.Fatalf("unexpected remote body %q", remote)
	}
}

func TestAcquireRemoteFailureRemovesCaptures(t *testing.T) {
	log := &requestLog{}
	server := newEpisodeServer(t, log, func(ua string) int {
		if ua == RemoteFingerprint.UserAgent {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})
	work := t.TempDir()
	fetcher := New(server.Client(), server.Client(), work, nil)

	_, err := fetcher.Acquire(context.Background(), Job{PodcastID: "pod", EpisodeID: "ep2", URL: server.URL})
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	captures := CapturePaths(work, "pod", "ep2")
	for _, path := range []string{captures.Local, captures.Remote, filepath.Join(work, "pod")} {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			t.Fatalf("expected %s removed, stat err=%v", path, statErr)
		}
	}
}

func TestCapturesRemoveKeepsDirectoryInUse(t *testing.T) {
	work := t.TempDir()
	first := CapturePaths(work, "pod", "ep1")
	second := CapturePaths(work, "pod", "ep2")
	if err := os.MkdirAll(filepath.Dir(first.Local), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, path := range []string{first.Local, first.Remote, second.Local} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	first.Remove()
	if _, err := os.Stat(second.Local); err != nil {
		t.Fatalf("other episode's capture must survive: %v", err)
	}

	second.Remove()
	if _, err := os.Stat(filepath.Join(work, "pod")); !os.IsNotExist(err) {
		t.Fatalf("expected empty podcast work dir removed, stat err=%v", err)
	}
	if _, err := os.Stat(work); err != nil {
		t.Fatalf("work root must stay: %v", err)
	}
}

func TestAcquireCancelledDuringDelay(t *testing.T) {
	log := &requestLog{}
	server := newEpisodeServer(t, log, nil)
	work := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := New(server.Client(), server.Client(), work, nil,
		WithDelay(time.Hour),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepContext(ctx, d)
		}),
	)

	_, err := fetcher.Acquire(ctx, Job{PodcastID: "pod", EpisodeID: "ep3", URL: server.URL})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(log.agents) != 1 {
		t.Fatalf("expected only the local request, got %d", len(log.agents))
	}
	if _, statErr := os.Stat(CapturePaths(work, "pod", "ep3").Local); !os.IsNotExist(statErr) {
		t.Fatalf("expected local capture removed, stat err=%v", statErr)
	}
}

func TestAcquireRejectsUnsafeIdentifiers(t *testing.T) {
	fetcher := New(http.DefaultClient, http.DefaultClient, t.TempDir(), nil)
	for _, job := range []Job{
		{PodcastID: "pod", EpisodeID: "../escape", URL: "http://example.invalid"},
		{PodcastID: "", EpisodeID: "ep", URL: "http://example.invalid"},
		{PodcastID: "pod", EpisodeID: "ep", URL: " "},
	} {
		if _, err := fetcher.Acquire(context.Background(), job); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("job %+v: expected ErrValidation, got %v", job, err)
		}
	}
}

func TestProxyClientTunnelsThroughSOCKS5(t *testing.T) {
	log := &requestLog{}
	server := newEpisodeServer(t, log, nil)
	proxyAddr, connects := startSOCKS5(t)

	client, err := NewProxyClient("socks5://"+proxyAddr, 10*time.Second)
	if err != nil {
		t.Fatalf("NewProxyClient returned error: %v", err)
	}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("GET through proxy: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if connects.Load() == 0 {
		t.Fatal("expected the request to pass through the proxy")
	}
}

func TestProxyClientRejectsUnsupportedScheme(t *testing.T) {
	if _, err := NewProxyClient("ftp://127.0.0.1:21", time.Second); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

// startSOCKS5 runs a minimal no-auth SOCKS5 CONNECT proxy.
func startSOCKS5(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	connects := &atomic.Int32{}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5(conn, connects)
		}
	}()
	return ln.Addr().String(), connects
}

func serveSOCKS5(conn net.Conn, connects *atomic.Int32) {
	defer conn.Close()
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil || header[0] != 5 {
		return
	}
	methods := make([]byte, int(header[1]))
	if _, err := io.ReadFull(conn, methods); err != nil {
		return
	}
	if _, err := conn.Write([]byte{5, 0}); err != nil {
		return
	}

	request := make([]byte, 4)
	if _, err := io.ReadFull(conn, request); err != nil || request[1] != 1 {
		return
	}
	var host string
	switch request[3] {
	case 1:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 3:
		size := make([]byte, 1)
		if _, err := io.ReadFull(conn, size); err != nil {
			return
		}
		name := make([]byte, int(size[0]))
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	case 4:
		ip := make([]byte, 16)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	default:
		return
	}
	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBytes); err != nil {
		return
	}
	target := net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(portBytes))))

	upstream, err := net.Dial("tcp", target)
	if err != nil {
		_, _ = conn.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer upstream.Close()
	connects.Add(1)
	if _, err := conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(upstream, conn); done <- struct{}{} }()
	go func() { _, _ = io.Copy(conn, upstream); done <- struct{}{} }()
	<-done
}
