package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"dailete/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
}

func TestCheckDirectoryAccess_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", path); result.Passed {
		t.Fatal("expected failure for a regular file")
	}
}

func TestCheckProxy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	if result := CheckProxy(context.Background(), "socks5://"+addr); !result.Passed {
		t.Fatalf("expected reachable proxy, got %s", result.Detail)
	}
	_ = ln.Close()
	if result := CheckProxy(context.Background(), "socks5://"+addr); result.Passed {
		t.Fatal("expected closed proxy to fail")
	}
	if result := CheckProxy(context.Background(), "::not a url"); result.Passed {
		t.Fatal("expected invalid address to fail")
	}
}

func TestRunAllReportsFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Proxy.Address = "socks5://127.0.0.1:1"

	results := RunAll(context.Background(), cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != ProxyCheckName {
		t.Fatalf("expected only the proxy check to fail, got %#v", failed)
	}
}
