package record

import "testing"

func TestCloneDeepCopiesNestedValues(t *testing.T) {
	orig := Record{
		"id":       "shape:s1",
		"typeName": "shape",
		"props":    map[string]any{"w": 100.0},
		"tags":     []any{"a", "b"},
	}

	cloned := orig.Clone()
	cloned["props"].(map[string]any)["w"] = 999.0
	cloned["tags"].([]any)[0] = "z"

	if orig["props"].(map[string]any)["w"] != 100.0 {
		t.Errorf("mutating the clone's props leaked into the original")
	}
	if orig["tags"].([]any)[0] != "a" {
		t.Errorf("mutating the clone's tags leaked into the original")
	}
}

func TestTypeNameFromID(t *testing.T) {
	got, err := TypeNameFromID("shape:abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "shape" {
		t.Errorf("got %q, want %q", got, "shape")
	}

	if _, err := TypeNameFromID("no-colon-here"); err == nil {
		t.Errorf("expected an error for an id with no typeName prefix")
	}
}

func TestValidateIDRequiresMatchingPrefix(t *testing.T) {
	good := Record{"id": "shape:s1", "typeName": "shape"}
	if err := ValidateID(good); err != nil {
		t.Errorf("expected a matching id/typeName pair to validate, got %v", err)
	}

	mismatched := Record{"id": "page:p1", "typeName": "shape"}
	if err := ValidateID(mismatched); err == nil {
		t.Errorf("expected a mismatched id prefix to fail validation")
	}

	missingID := Record{"typeName": "shape"}
	if err := ValidateID(missingID); err == nil {
		t.Errorf("expected a missing id to fail validation")
	}
}

func TestScopeOfKnownAndUnknownTypes(t *testing.T) {
	if s, ok := ScopeOf("shape"); !ok || s != Document {
		t.Errorf("expected shape to be a document-scope type, got %v/%v", s, ok)
	}
	if s, ok := ScopeOf("instance_presence"); !ok || s != Presence {
		t.Errorf("expected instance_presence to be a presence-scope type, got %v/%v", s, ok)
	}
	if s, ok := ScopeOf("pointer"); !ok || s != Session {
		t.Errorf("expected pointer to be a session-scope type, got %v/%v", s, ok)
	}
	if _, ok := ScopeOf("not-a-real-type"); ok {
		t.Errorf("expected an unrecognized typeName to report unknown")
	}
}

func TestScopeString(t *testing.T) {
	cases := map[Scope]string{Document: "document", Presence: "presence", Session: "session", Scope(99): "unknown"}
	for scope, want := range cases {
		if got := scope.String(); got != want {
			t.Errorf("Scope(%d).String() = %q, want %q", scope, got, want)
		}
	}
}

func TestIsDocumentTypeAndIsPresenceType(t *testing.T) {
	if !IsDocumentType("page") {
		t.Errorf("expected page to be a document type")
	}
	if IsDocumentType("pointer") {
		t.Errorf("expected pointer not to be a document type")
	}
	if !IsPresenceType("instance_presence") {
		t.Errorf("expected instance_presence to be the presence type")
	}
	if IsPresenceType("shape") {
		t.Errorf("expected shape not to be the presence type")
	}
}

func TestRegistryValidateDocumentRequiresGridSize(t *testing.T) {
	reg := NewRegistry()

	withGrid := Record{"id": "document:doc1", "typeName": "document", "gridSize": 10.0}
	if err := reg.Validate(withGrid); err != nil {
		t.Errorf("expected a document with gridSize to validate, got %v", err)
	}

	withoutGrid := Record{"id": "document:doc1", "typeName": "document"}
	if err := reg.Validate(withoutGrid); err == nil {
		t.Errorf("expected a document missing gridSize to fail validation")
	}
}

func TestRegistryValidateShapeRequiresInnerTypeXYAndProps(t *testing.T) {
	reg := NewRegistry()

	valid := Record{
		"id": "shape:s1", "typeName": "shape", "type": "geo",
		"x": 0.0, "y": 0.0, "props": map[string]any{"w": 1.0},
	}
	if err := reg.Validate(valid); err != nil {
		t.Errorf("expected a well-formed geo shape to validate, got %v", err)
	}

	missingProps := Record{"id": "shape:s1", "typeName": "shape", "type": "geo", "x": 0.0, "y": 0.0}
	if err := reg.Validate(missingProps); err == nil {
		t.Errorf("expected a shape missing props to fail validation")
	}

	missingXY := Record{"id": "shape:s1", "typeName": "shape", "type": "geo", "props": map[string]any{}}
	if err := reg.Validate(missingXY); err == nil {
		t.Errorf("expected a shape missing x/y to fail validation")
	}

	missingInner := Record{"id": "shape:s1", "typeName": "shape", "x": 0.0, "y": 0.0, "props": map[string]any{}}
	if err := reg.Validate(missingInner); err == nil {
		t.Errorf("expected a shape missing its inner type tag to fail validation")
	}
}

func TestRegistryValidateArrowBindingRequiresEndpoints(t *testing.T) {
	reg := NewRegistry()

	valid := Record{
		"id": "binding:b1", "typeName": "binding", "type": "arrow",
		"props": map[string]any{"startShapeId": "shape:a", "endShapeId": "shape:b"},
	}
	if err := reg.Validate(valid); err != nil {
		t.Errorf("expected a well-formed arrow binding to validate, got %v", err)
	}

	missingEnd := Record{
		"id": "binding:b1", "typeName": "binding", "type": "arrow",
		"props": map[string]any{"startShapeId": "shape:a"},
	}
	if err := reg.Validate(missingEnd); err == nil {
		t.Errorf("expected an arrow binding missing endShapeId to fail validation")
	}
}

func TestRegistryValidateAssetRequiresInnerTypeAndProps(t *testing.T) {
	reg := NewRegistry()

	valid := Record{"id": "asset:a1", "typeName": "asset", "type": "image", "props": map[string]any{}}
	if err := reg.Validate(valid); err != nil {
		t.Errorf("expected a well-formed image asset to validate, got %v", err)
	}

	missingProps := Record{"id": "asset:a1", "typeName": "asset", "type": "image"}
	if err := reg.Validate(missingProps); err == nil {
		t.Errorf("expected an asset missing props to fail validation")
	}
}

func TestRegistryValidateRejectsUnknownTypeName(t *testing.T) {
	reg := NewRegistry()
	unknown := Record{"id": "widget:w1", "typeName": "widget"}
	if err := reg.Validate(unknown); err == nil {
		t.Errorf("expected an unrecognized typeName to fail validation")
	}
}

func TestRegistryValidateSessionScopeFallsBackToIDCheckOnly(t *testing.T) {
	reg := NewRegistry()
	pointer := Record{"id": "pointer:sess1", "typeName": "pointer", "x": 1.0, "y": 2.0}
	if err := reg.Validate(pointer); err != nil {
		t.Errorf("expected an unvalidated session-scope type to pass the generic id check, got %v", err)
	}
}
