package schema

import "errors"

// ErrClientTooOld is returned when a client's declared schema (or
// protocol version) is behind what the server requires to communicate
// safely with it — e.g. a pending store-scope migration it lacks, or a
// migration the server can no longer reverse for it. See spec §7.
var ErrClientTooOld = errors.New("schema: client too old")

// ErrServerTooOld is returned when a client declares sequences or
// versions the server has never heard of. See spec §7.
var ErrServerTooOld = errors.New("schema: server too old")
