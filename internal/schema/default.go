package schema

import "odin-sync/internal/record"

// DefaultSchema builds the concrete migration set this server ships
// with. Each sequence corresponds to one record family; see spec §4.3
// and §9 "Dynamic typing" for the shape/binding/asset variant catalogue
// these migrate.
func DefaultSchema() (*Schema, error) {
	b := NewBuilder()

	b.AddSequence("com.odinsync.document", nil,
		&Migration{Version: 1, Scope: RecordScope, Up: identityUp, Down: identityDown},
	)

	b.AddSequence("com.odinsync.shape", nil,
		&Migration{Version: 1, Scope: RecordScope, Up: identityUp, Down: identityDown},
		&Migration{
			Version: 2, Scope: RecordScope,
			Filter: func(r record.Record) bool { return r.TypeName() == "shape" },
			Up:   addDefaultOpacity,
			Down: dropOpacity,
		},
	)

	b.AddSequence("com.odinsync.binding", []string{"com.odinsync.shape"},
		&Migration{Version: 1, Scope: RecordScope, Up: identityUp, Down: identityDown},
	)

	b.AddSequence("com.odinsync.asset", nil,
		&Migration{Version: 1, Scope: RecordScope, Up: identityUp, Down: identityDown},
	)

	return b.Build(record.NewRegistry())
}

func identityUp(r record.Record) (record.Record, error)   { return r, nil }
func identityDown(r record.Record) (record.Record, error) { return r, nil }

// addDefaultOpacity backfills props.opacity=1 on shapes created before
// opacity existed.
func addDefaultOpacity(r record.Record) (record.Record, error) {
	out := r.Clone()
	props, _ := out["props"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	if _, ok := props["opacity"]; !ok {
		props["opacity"] = 1.0
	}
	out["props"] = props
	return out, nil
}

// dropOpacity reverses addDefaultOpacity for a client declaring version 1.
func dropOpacity(r record.Record) (record.Record, error) {
	out := r.Clone()
	if props, ok := out["props"].(map[string]any); ok {
		delete(props, "opacity")
		out["props"] = props
	}
	return out, nil
}
