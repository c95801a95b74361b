package domain

import "errors"

// Sentinel errors for the application. Every error surfaced to a client is
// classified into one of these before it leaves a handler boundary.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrNotParticipant   = errors.New("not a participant in this conversation")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyDeleted   = errors.New("message already deleted")
	ErrAlreadyRevoked   = errors.New("message already revoked")
	ErrNotSender        = errors.New("only the sender can do this")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("resource already exists")
)

// Kind is the client-facing error category.
type Kind string

const (
	KindUnauthenticated  Kind = "Unauthenticated"
	KindNotParticipant   Kind = "NotParticipant"
	KindPermissionDenied Kind = "PermissionDenied"
	KindNotFound         Kind = "NotFound"
	KindAlreadyDeleted   Kind = "AlreadyDeleted"
	KindAlreadyRevoked   Kind = "AlreadyRevoked"
	KindNotSender        Kind = "NotSender"
	KindInvalidRequest   Kind = "InvalidRequest"
	KindStoreUnavailable Kind = "StoreUnavailable"
	KindConflict         Kind = "Conflict"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrNotParticipant, KindNotParticipant},
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrNotFound, KindNotFound},
	{ErrAlreadyDeleted, KindAlreadyDeleted},
	{ErrAlreadyRevoked, KindAlreadyRevoked},
	{ErrNotSender, KindNotSender},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrConflict, KindConflict},
	{ErrStoreUnavailable, KindStoreUnavailable},
}

// KindOf classifies err. Anything that does not wrap a known sentinel is
// treated as a persistence failure.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindStoreUnavailable
}

// Describe returns the taxonomy-level description of err, safe to show to
// clients.
func Describe(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err.Error()
		}
	}
	return ErrStoreUnavailable.Error()
}
