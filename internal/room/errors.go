package room

import "errors"

// Error taxonomy, see spec §7 "Error Handling Design". ClientTooOld and
// ServerTooOld are not defined here: they are schema.ErrClientTooOld and
// schema.ErrServerTooOld, matched via isErrClientTooOld/isErrServerTooOld.
// The errors below are specific to room-level semantics.
var (
	ErrInvalidRecord    = errors.New("room: invalid record")
	ErrInvalidOperation = errors.New("room: invalid operation")
	ErrProtocolError    = errors.New("room: protocol error")
	ErrPersistence      = errors.New("room: persistence error")
	ErrMigrationInternal = errors.New("room: internal migration error")
	ErrRoomClosed       = errors.New("room: closed")
	ErrUnknownSession   = errors.New("room: unknown session")
)
