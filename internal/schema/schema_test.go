package schema

import (
	"errors"
	"testing"

	"odin-sync/internal/diff"
	"odin-sync/internal/record"
)

func isShape(r record.Record) bool { return r.TypeName() == "shape" }

func buildTestSchema(t *testing.T) *Schema {
	t.Helper()
	opacityMigration := &Migration{
		Version: 2,
		Scope:   RecordScope,
		Filter:  isShape,
		Up: func(r record.Record) (record.Record, error) {
			out := r.Clone()
			if _, ok := out["opacity"]; !ok {
				out["opacity"] = 1.0
			}
			return out, nil
		},
		Down: func(r record.Record) (record.Record, error) {
			out := r.Clone()
			delete(out, "opacity")
			return out, nil
		},
	}
	v1 := &Migration{Version: 1, Scope: RecordScope, Filter: isShape, Up: func(r record.Record) (record.Record, error) { return r, nil }}

	s, err := NewBuilder().
		AddSequence("com.example.shape", nil, v1, opacityMigration).
		Build(record.NewRegistry())
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return s
}

func TestMigrationIdempotenceNoOp(t *testing.T) {
	s := buildTestSchema(t)
	serverVersions := s.Serialize()

	r := record.Record{"id": "shape:a", "typeName": "shape", "type": "geo", "props": map[string]any{}, "x": 0.0, "y": 0.0}

	up, err := s.MigrateRecordUp(serverVersions, r)
	if err != nil {
		t.Fatalf("migrate up at server version: %v", err)
	}
	down, err := s.MigrateRecordDown(serverVersions, up)
	if err != nil {
		t.Fatalf("migrate down at server version: %v", err)
	}
	if !diff.Equal(map[string]any(down), map[string]any(up)) {
		t.Fatalf("expected no-op round trip, got %#v vs %#v", down, up)
	}
}

func TestMigrationUpDownRoundTrip(t *testing.T) {
	s := buildTestSchema(t)
	clientVersions := SerializedSchema{"com.example.shape": 1}

	original := record.Record{"id": "shape:a", "typeName": "shape", "type": "geo", "props": map[string]any{}, "x": 0.0, "y": 0.0}

	up, err := s.MigrateRecordUp(clientVersions, original)
	if err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if _, ok := up["opacity"]; !ok {
		t.Fatalf("expected opacity to be added by up-migration")
	}

	down, err := s.MigrateRecordDown(clientVersions, up)
	if err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	if !diff.Equal(map[string]any(down), map[string]any(original)) {
		t.Fatalf("round trip mismatch: got %#v want %#v", down, original)
	}
}

func TestCheckClientVersionsServerTooOld(t *testing.T) {
	s := buildTestSchema(t)

	err := s.CheckClientVersions(SerializedSchema{"com.example.shape": 5})
	if !errors.Is(err, ErrServerTooOld) {
		t.Fatalf("expected ErrServerTooOld for version ahead of server, got %v", err)
	}

	err = s.CheckClientVersions(SerializedSchema{"com.example.unknown": 1})
	if !errors.Is(err, ErrServerTooOld) {
		t.Fatalf("expected ErrServerTooOld for unknown sequence, got %v", err)
	}
}

func TestCheckDownCompatibleClientTooOld(t *testing.T) {
	retired := &Migration{
		Version: 2,
		Scope:   RecordScope,
		Up:      func(r record.Record) (record.Record, error) { return r, nil },
		Down:    func(r record.Record) (record.Record, error) { return r, nil },
		Retired: true,
	}
	v1 := &Migration{Version: 1, Scope: RecordScope, Up: func(r record.Record) (record.Record, error) { return r, nil }}
	s, err := NewBuilder().AddSequence("com.example.retired", nil, v1, retired).Build(record.NewRegistry())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	err = s.CheckDownCompatible(SerializedSchema{"com.example.retired": 1})
	if !errors.Is(err, ErrClientTooOld) {
		t.Fatalf("expected ErrClientTooOld for retired down-migration, got %v", err)
	}
}

func TestProtocolVersionAlias(t *testing.T) {
	v, aliased, err := NormalizeProtocolVersion(5)
	if err != nil || !aliased || v != CurrentProtocolVersion {
		t.Fatalf("expected alias 5->6, got v=%d aliased=%v err=%v", v, aliased, err)
	}

	if _, _, err := NormalizeProtocolVersion(3); !errors.Is(err, ErrClientTooOld) {
		t.Fatalf("expected ErrClientTooOld for version below minimum, got %v", err)
	}

	if _, _, err := NormalizeProtocolVersion(99); !errors.Is(err, ErrServerTooOld) {
		t.Fatalf("expected ErrServerTooOld for version above current, got %v", err)
	}
}
