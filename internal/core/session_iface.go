package core

// SessionID is the client token of a browser session. Several connections
// may share one; peers never do.
type SessionID string
