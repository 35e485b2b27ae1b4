package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewRegistryCountersStartAtZero(t *testing.T) {
	reg := NewRegistry()

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "odin_sync_pushes_committed_total 0") {
		t.Errorf("expected pushes_committed_total to start at 0, body:\n%s", body)
	}
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	// Each Registry registers against its own prometheus.Registry, so
	// building a second one must not panic with a duplicate-collector error.
	reg1 := NewRegistry()
	reg2 := NewRegistry()
	reg1.RoomsActive.Set(1)
	reg2.RoomsActive.Set(2)
}

func TestPushesCommittedIsExposedAfterIncrement(t *testing.T) {
	reg := NewRegistry()
	reg.PushesCommitted.Inc()
	reg.PushesCommitted.Inc()

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64<<10)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])
	if !strings.Contains(body, "odin_sync_pushes_committed_total 2") {
		t.Errorf("expected pushes_committed_total to read 2, body:\n%s", body)
	}
}

func TestStartSystemSamplerStopsOnSignal(t *testing.T) {
	reg := NewRegistry()
	stop := make(chan struct{})
	reg.StartSystemSampler(5*time.Millisecond, stop)
	time.Sleep(20 * time.Millisecond)
	close(stop)
	// No assertion beyond not hanging/panicking: SampleSystem's gopsutil
	// calls are best-effort and the goroutine must exit cleanly.
}
