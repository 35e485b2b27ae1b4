package room

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"odin-sync/internal/diff"
	"odin-sync/internal/schema"
	"odin-sync/internal/wire"
)

// fakeSocket records every frame sent to it for assertions, and never
// errors — good enough for exercising room logic without a real
// transport.
type fakeSocket struct {
	mu     sync.Mutex
	frames []string
	closed bool
}

func (f *fakeSocket) Send(frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return ""
	}
	return f.frames[len(f.frames)-1]
}

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	sch, err := schema.DefaultSchema()
	if err != nil {
		t.Fatalf("DefaultSchema: %v", err)
	}
	r, err := New("room-test", Options{Schema: sch}, nil)
	if err != nil {
		t.Fatalf("room.New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func connectSession(t *testing.T, r *Room, sock *fakeSocket) string {
	t.Helper()
	sessionID := r.AcceptSession(sock)
	req := wire.ConnectRequest{
		Type:             wire.TypeConnect,
		ConnectRequestID: "req-1",
		ProtocolVersion:  schema.CurrentProtocolVersion,
		Schema:           schema.SerializedSchema{},
		LastServerClock:  0,
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal connect: %v", err)
	}
	r.HandleMessage(sessionID, raw)
	return sessionID
}

// flushSession forces a session's debounce buffer to flush immediately,
// so a test doesn't need to wait on the room's ticker to observe a
// push_result or patch message.
func flushSession(r *Room, sessionID string) {
	r.exec(func(rm *Room) {
		if sess, ok := rm.sessions[sessionID]; ok {
			_ = sess.Flush()
		}
	})
}

// lastDataMessages flushes sessionID's debounce buffer and decodes the
// resulting "data" envelope's entries, keyed by their own "type" field.
func lastDataMessages(t *testing.T, r *Room, sessionID string, sock *fakeSocket) []json.RawMessage {
	t.Helper()
	flushSession(r, sessionID)
	var env wire.DataEnvelope
	if err := json.Unmarshal([]byte(sock.last()), &env); err != nil {
		t.Fatalf("unmarshal data envelope: %v (frame: %s)", err, sock.last())
	}
	return env.Data
}

func TestBootstrapDefaultsSeedsDocumentAndPage(t *testing.T) {
	r := newTestRoom(t)
	snap := r.GetSnapshot()
	if _, ok := snap.Records["document:document"]; !ok {
		t.Errorf("expected default document record")
	}
	if _, ok := snap.Records["page:page"]; !ok {
		t.Errorf("expected default page record")
	}
}

func TestConnectFirstTimeGetsWipeAllWithCurrentRecords(t *testing.T) {
	r := newTestRoom(t)
	sock := &fakeSocket{}
	connectSession(t, r, sock)

	if sock.count() == 0 {
		t.Fatalf("expected a connect reply frame")
	}
	var reply wire.ConnectReply
	if err := json.Unmarshal([]byte(sock.last()), &reply); err != nil {
		t.Fatalf("unmarshal connect reply: %v", err)
	}
	if reply.HydrationType != wire.WipeAll {
		t.Errorf("hydration_type = %q, want wipe_all", reply.HydrationType)
	}
	if len(reply.Diff) < 2 {
		t.Errorf("expected diff to carry both bootstrap records, got %d entries", len(reply.Diff))
	}
}

func TestPushCommitBroadcastsToOtherSessions(t *testing.T) {
	r := newTestRoom(t)
	sockA := &fakeSocket{}
	sockB := &fakeSocket{}
	sessA := connectSession(t, r, sockA)
	sessB := connectSession(t, r, sockB)

	push := wire.PushRequest{
		Type:        wire.TypePush,
		ClientClock: r.GetSnapshot().Clock,
		Diff: wire.DiffMap{
			"shape:s1": {Kind: wire.OpPut, Record: map[string]any{
				"id": "shape:s1", "typeName": "shape", "type": "geo",
				"x": 1.0, "y": 2.0, "props": map[string]any{},
			}},
		},
	}
	raw, err := json.Marshal(push)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	r.HandleMessage(sessA, raw)

	msgsA := lastDataMessages(t, r, sessA, sockA)
	if len(msgsA) == 0 {
		t.Fatalf("expected sessA to receive a push_result")
	}
	var result wire.PushResult
	if err := json.Unmarshal(msgsA[len(msgsA)-1], &result); err != nil {
		t.Fatalf("unmarshal push result: %v", err)
	}
	if result.Action.Kind != wire.ActionCommit {
		t.Errorf("action kind = %v, want commit", result.Action.Kind)
	}

	msgsB := lastDataMessages(t, r, sessB, sockB)
	if len(msgsB) == 0 {
		t.Fatalf("expected sessB to receive a broadcast patch")
	}
	var patch wire.PatchMessage
	if err := json.Unmarshal(msgsB[len(msgsB)-1], &patch); err != nil {
		t.Fatalf("unmarshal broadcast patch: %v", err)
	}
	if _, ok := patch.Diff["shape:s1"]; !ok {
		t.Errorf("expected broadcast diff to carry shape:s1, got %v", patch.Diff)
	}

	snap := r.GetSnapshot()
	if _, ok := snap.Records["shape:s1"]; !ok {
		t.Errorf("expected shape:s1 to be committed to room state")
	}
}

func TestPushInvalidRecordIsRejected(t *testing.T) {
	r := newTestRoom(t)
	sock := &fakeSocket{}
	sessID := connectSession(t, r, sock)
	framesBefore := sock.count()

	push := wire.PushRequest{
		Type:        wire.TypePush,
		ClientClock: r.GetSnapshot().Clock,
		Diff: wire.DiffMap{
			// missing required x/y/props -> fails shape validation
			"shape:bad": {Kind: wire.OpPut, Record: map[string]any{
				"id": "shape:bad", "typeName": "shape", "type": "geo",
			}},
		},
	}
	raw, err := json.Marshal(push)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	r.HandleMessage(sessID, raw)

	// failSession sends an error message immediately, outside the
	// debounced stream, so it's visible without a flush.
	if sock.count() <= framesBefore {
		t.Fatalf("expected an error frame for the invalid push")
	}
	var errMsg wire.ErrorMessage
	if err := json.Unmarshal([]byte(sock.last()), &errMsg); err != nil {
		t.Fatalf("unmarshal error message: %v", err)
	}
	if errMsg.Type != wire.TypeError {
		t.Errorf("expected an error message, got %q", errMsg.Type)
	}

	snap := r.GetSnapshot()
	if _, ok := snap.Records["shape:bad"]; ok {
		t.Errorf("invalid record must not be committed")
	}
}

func TestPushPatchesOnDisjointKeysBothCommit(t *testing.T) {
	// Spec scenario S3: two concurrent patches touching different keys of
	// the same record must both commit, not conflict, since op.Kind Put
	// or a Patch into an untouched key always applies cleanly against
	// whatever the live record currently is.
	r := newTestRoom(t)
	sockA := &fakeSocket{}
	sockB := &fakeSocket{}
	sessA := connectSession(t, r, sockA)
	sessB := connectSession(t, r, sockB)

	create := wire.PushRequest{
		Type: wire.TypePush,
		Diff: wire.DiffMap{
			"shape:s1": {Kind: wire.OpPut, Record: map[string]any{
				"id": "shape:s1", "typeName": "shape", "type": "geo",
				"x": 0.0, "y": 0.0, "props": map[string]any{},
			}},
		},
	}
	rawCreate, _ := json.Marshal(create)
	r.HandleMessage(sessA, rawCreate)

	aPatch := wire.PushRequest{
		Type: wire.TypePush,
		Diff: wire.DiffMap{
			"shape:s1": {Kind: wire.OpPatch, Diff: diff.ObjectDiff{
				"x": {Kind: diff.Put, Value: 10.0},
			}},
		},
	}
	rawA, _ := json.Marshal(aPatch)
	r.HandleMessage(sessA, rawA)

	bPatch := wire.PushRequest{
		Type: wire.TypePush,
		Diff: wire.DiffMap{
			"shape:s1": {Kind: wire.OpPatch, Diff: diff.ObjectDiff{
				"y": {Kind: diff.Put, Value: 5.0},
			}},
		},
	}
	rawB, _ := json.Marshal(bPatch)
	r.HandleMessage(sessB, rawB)

	msgsB := lastDataMessages(t, r, sessB, sockB)
	if len(msgsB) == 0 {
		t.Fatalf("expected a push_result frame for sessB's patch")
	}
	var resultB wire.PushResult
	if err := json.Unmarshal(msgsB[len(msgsB)-1], &resultB); err != nil {
		t.Fatalf("unmarshal push result: %v", err)
	}
	if resultB.Action.Kind != wire.ActionCommit {
		t.Errorf("action kind = %v, want commit (disjoint-key patches must merge)", resultB.Action.Kind)
	}

	snap := r.GetSnapshot()
	got := snap.Records["shape:s1"]
	if got["x"] != 10.0 {
		t.Errorf("expected sessA's x patch to stick, got %v", got["x"])
	}
	if got["y"] != 5.0 {
		t.Errorf("expected sessB's y patch to also stick, got %v", got["y"])
	}
}

func TestPushConflictTriggersRebase(t *testing.T) {
	r := newTestRoom(t)
	sockA := &fakeSocket{}
	sockB := &fakeSocket{}
	sessA := connectSession(t, r, sockA)
	sessB := connectSession(t, r, sockB)

	create := wire.PushRequest{
		Type: wire.TypePush,
		Diff: wire.DiffMap{
			"shape:conflict": {Kind: wire.OpPut, Record: map[string]any{
				"id": "shape:conflict", "typeName": "shape", "type": "geo",
				"x": 0.0, "y": 0.0, "props": map[string]any{},
				"history": []any{"a"},
			}},
		},
	}
	rawCreate, _ := json.Marshal(create)
	r.HandleMessage(sessA, rawCreate)

	// sessB appends to history while it's still length 1, so its offset
	// matches and it commits, bumping history to length 2.
	bPatch := wire.PushRequest{
		Type: wire.TypePush,
		Diff: wire.DiffMap{
			"shape:conflict": {Kind: wire.OpPatch, Diff: diff.ObjectDiff{
				"history": {Kind: diff.Append, Values: []any{"b"}, Offset: 1},
			}},
		},
	}
	rawB, _ := json.Marshal(bPatch)
	r.HandleMessage(sessB, rawB)

	// sessA still reasons from the length-1 view and appends at the same
	// offset; by the time it lands, history is length 2, so the append
	// would be silently dropped by diff.Apply. That must surface as a
	// conflict/rebase, not a silent no-op commit.
	aPatch := wire.PushRequest{
		Type: wire.TypePush,
		Diff: wire.DiffMap{
			"shape:conflict": {Kind: wire.OpPatch, Diff: diff.ObjectDiff{
				"history": {Kind: diff.Append, Values: []any{"c"}, Offset: 1},
			}},
		},
	}
	rawA, _ := json.Marshal(aPatch)
	r.HandleMessage(sessA, rawA)

	msgs := lastDataMessages(t, r, sessA, sockA)
	if len(msgs) == 0 {
		t.Fatalf("expected a push_result frame for the conflicting push")
	}
	var result wire.PushResult
	if err := json.Unmarshal(msgs[len(msgs)-1], &result); err != nil {
		t.Fatalf("unmarshal push result: %v", err)
	}
	if result.Action.Kind != wire.ActionRebase {
		t.Errorf("action kind = %v, want rebase", result.Action.Kind)
	}
	if _, ok := result.Action.RebaseDiff["shape:conflict"]; !ok {
		t.Errorf("expected rebase diff to carry the authoritative shape:conflict state")
	}
}

func TestJanitorClosesConnectTimedOutSession(t *testing.T) {
	r := newTestRoom(t)
	sock := &fakeSocket{}
	sessionID := r.AcceptSession(sock)

	framesBefore := sock.count()
	r.exec(func(rm *Room) {
		rm.runJanitorTick(time.Now().Add(2 * time.Minute))
	})

	if sock.count() <= framesBefore {
		t.Errorf("expected an error frame sent to the never-connected session")
	}
	var errMsg wire.ErrorMessage
	if err := json.Unmarshal([]byte(sock.last()), &errMsg); err != nil {
		t.Fatalf("unmarshal error message: %v", err)
	}
	if errMsg.Type != wire.TypeError {
		t.Errorf("expected an error message, got %q", errMsg.Type)
	}
	r.exec(func(rm *Room) {
		if _, ok := rm.sessions[sessionID]; ok {
			t.Errorf("expected session to be removed after connect timeout")
		}
	})
}

func TestTombstoneRecordedOnRemove(t *testing.T) {
	r := newTestRoom(t)
	sock := &fakeSocket{}
	sessID := connectSession(t, r, sock)

	put := wire.PushRequest{
		Type:        wire.TypePush,
		ClientClock: r.GetSnapshot().Clock,
		Diff: wire.DiffMap{
			"shape:temp": {Kind: wire.OpPut, Record: map[string]any{
				"id": "shape:temp", "typeName": "shape", "type": "geo",
				"x": 0.0, "y": 0.0, "props": map[string]any{},
			}},
		},
	}
	rawPut, _ := json.Marshal(put)
	r.HandleMessage(sessID, rawPut)

	remove := wire.PushRequest{
		Type:        wire.TypePush,
		ClientClock: r.GetSnapshot().Clock,
		Diff: wire.DiffMap{
			"shape:temp": {Kind: wire.OpRemove},
		},
	}
	rawRemove, _ := json.Marshal(remove)
	r.HandleMessage(sessID, rawRemove)

	snap := r.GetSnapshot()
	if _, ok := snap.Records["shape:temp"]; ok {
		t.Errorf("expected shape:temp to be gone from the document state")
	}
	if _, ok := snap.Tombstones["shape:temp"]; !ok {
		t.Errorf("expected a tombstone recorded for shape:temp")
	}
}
