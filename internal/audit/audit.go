// Package audit provides a unified helper for writing operation audit
// records. Records go out as structured log lines through the same zerolog
// sink every other component logs through; it is a log sink, not a new
// HTTP surface.
package audit

import "github.com/rs/zerolog/log"

// Status is a mutating operation's outcome. There is no pending state:
// every operation here either completes synchronously or is retried by the
// janitor, which logs its own outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is one audit record. Action names the mutating operation (e.g.
// "files.confirm", "files.upload", "files.delete", "files.download.resolve",
// "files.download.unlock"); ActorID is the owner id when known, empty for
// anonymous share-code operations.
type Entry struct {
	Action  string
	ActorID string
	Status  Status
	Detail  string
}

// Write emits one structured log line per mutating operation.
// It never includes presigned URLs or password material.
func Write(e Entry) {
	ev := log.Info()
	if e.Status == StatusFailed {
		ev = log.Warn()
	}
	ev.Str("auditAction", e.Action).
		Str("actorId", e.ActorID).
		Str("status", string(e.Status)).
		Str("detail", e.Detail).
		Msg("audit")
}
