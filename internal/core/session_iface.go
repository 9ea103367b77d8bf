package core

// SessionID is the opaque handle of one live connection.
type SessionID string
