package transport

import (
	"net"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func TestWSSocketSendWritesAServerTextFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sock := NewWSSocket(server)

	done := make(chan struct{})
	var got []byte
	var readErr error
	go func() {
		defer close(done)
		got, _, readErr = wsutil.ReadServerData(client)
	}()

	if err := sock.Send("hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	<-done
	if readErr != nil {
		t.Fatalf("read server data: %v", readErr)
	}
	if string(got) != "hello" {
		t.Errorf("got frame %q, want %q", got, "hello")
	}
}

func TestWSSocketReadFrameReturnsClientTextPayload(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sock := NewWSSocket(server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = wsutil.WriteClientMessage(client, ws.OpText, []byte("world"))
	}()

	frame, err := sock.ReadFrame()
	<-done
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame != "world" {
		t.Errorf("got frame %q, want %q", frame, "world")
	}
}

func TestWSSocketSendAfterCloseFails(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	sock := NewWSSocket(server)
	if err := sock.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sock.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if err := sock.Send("too late"); err == nil {
		t.Errorf("expected Send after Close to fail")
	}
}
