package record

// Scope partitions the record universe by replication and persistence
// behavior. See spec §3 "Records".
type Scope int

const (
	// Document records are shared, persisted, replicated to every client,
	// and part of the room snapshot.
	Document Scope = iota
	// Presence records are ephemeral per-session, broadcast to peers but
	// never persisted and never authoritative beyond the owning session's
	// last write.
	Presence
	// Session records are purely client-local; the server never reads or
	// writes their contents, only round-trips them opaquely through the
	// wire codec and schema validator.
	Session
)

func (s Scope) String() string {
	switch s {
	case Document:
		return "document"
	case Presence:
		return "presence"
	case Session:
		return "session"
	default:
		return "unknown"
	}
}

// documentTypes, presenceTypes, and sessionTypes are the closed set of
// typeNames in each scope, per spec §3.
var (
	documentTypes = map[string]bool{
		"document": true,
		"page":     true,
		"shape":    true,
		"binding":  true,
		"asset":    true,
		"camera":   true,
	}
	presenceTypes = map[string]bool{
		"instance_presence": true,
	}
	sessionTypes = map[string]bool{
		"instance":            true,
		"instance_page_state": true,
		"pointer":             true,
	}
)

// ScopeOf returns the scope for a typeName, and false if the typeName is
// not part of the closed set any scope recognizes.
func ScopeOf(typeName string) (Scope, bool) {
	switch {
	case documentTypes[typeName]:
		return Document, true
	case presenceTypes[typeName]:
		return Presence, true
	case sessionTypes[typeName]:
		return Session, true
	default:
		return 0, false
	}
}

// IsDocumentType reports whether typeName is in document scope.
func IsDocumentType(typeName string) bool { return documentTypes[typeName] }

// IsPresenceType reports whether typeName is the presence type.
func IsPresenceType(typeName string) bool { return presenceTypes[typeName] }
