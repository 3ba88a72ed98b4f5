package event

import (
	"time"

	"github.com/vertextoedge/media-cache/internal/domain"
)

// Event names
const (
	NameCacheProgress   = "cache.progress"
	NameCacheFinished   = "cache.finished"
	NameRequestFailed   = "request.failed"
	NameSessionOpened   = "session.opened"
	NameSessionClosed   = "session.closed"
	NameResourceEvicted = "resource.evicted"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// CacheProgressUpdated carries a metadata snapshot of a resource being downloaded.
// Final is set on the snapshot emitted when a plan completes.
type CacheProgressUpdated struct {
	BaseEvent
	URL      string
	Metadata *domain.CacheMetadata
	Final    bool
}

// EventName returns the event name
func (e CacheProgressUpdated) EventName() string {
	return NameCacheProgress
}

// NewCacheProgressUpdated creates a new CacheProgressUpdated event
func NewCacheProgressUpdated(url string, snapshot *domain.CacheMetadata, final bool) CacheProgressUpdated {
	return CacheProgressUpdated{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		Metadata:  snapshot,
		Final:     final,
	}
}

// CacheFinished is raised once a resource is fully cached, or when a download
// of it terminates with an error
type CacheFinished struct {
	BaseEvent
	URL      string
	Metadata *domain.CacheMetadata
	Err      error
}

// EventName returns the event name
func (e CacheFinished) EventName() string {
	return NameCacheFinished
}

// Succeeded returns true if the resource finished without error
func (e CacheFinished) Succeeded() bool {
	return e.Err == nil
}

// NewCacheFinished creates a new CacheFinished event
func NewCacheFinished(url string, snapshot *domain.CacheMetadata, err error) CacheFinished {
	return CacheFinished{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		Metadata:  snapshot,
		Err:       err,
	}
}

// RequestFailed is raised when a consumer request terminates with an error
// other than cancellation
type RequestFailed struct {
	BaseEvent
	URL       string
	SessionID string
	Range     domain.ByteRange
	Kind      string
	Err       error
}

// EventName returns the event name
func (e RequestFailed) EventName() string {
	return NameRequestFailed
}

// NewRequestFailed creates a new RequestFailed event
func NewRequestFailed(url, sessionID string, r domain.ByteRange, err error) RequestFailed {
	return RequestFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		SessionID: sessionID,
		Range:     r,
		Kind:      domain.ErrorKind(err),
		Err:       err,
	}
}

// SessionOpened is raised when a resource session is created
type SessionOpened struct {
	BaseEvent
	URL       string
	SessionID string
}

// EventName returns the event name
func (e SessionOpened) EventName() string {
	return NameSessionOpened
}

// NewSessionOpened creates a new SessionOpened event
func NewSessionOpened(url, sessionID string) SessionOpened {
	return SessionOpened{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		SessionID: sessionID,
	}
}

// SessionClosed is raised when a resource session is torn down
type SessionClosed struct {
	BaseEvent
	URL       string
	SessionID string
	Reason    string
}

// EventName returns the event name
func (e SessionClosed) EventName() string {
	return NameSessionClosed
}

// NewSessionClosed creates a new SessionClosed event
func NewSessionClosed(url, sessionID, reason string) SessionClosed {
	return SessionClosed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		SessionID: sessionID,
		Reason:    reason,
	}
}

// ResourceEvicted is raised when the janitor removes a cached resource
type ResourceEvicted struct {
	BaseEvent
	URL    string
	Size   uint64
	Reason string
}

// EventName returns the event name
func (e ResourceEvicted) EventName() string {
	return NameResourceEvicted
}

// NewResourceEvicted creates a new ResourceEvicted event
func NewResourceEvicted(url string, size uint64, reason string) ResourceEvicted {
	return ResourceEvicted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		Size:      size,
		Reason:    reason,
	}
}
