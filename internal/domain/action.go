package domain

import (
	"fmt"
)

// SourceKind tells where the bytes of an action come from
type SourceKind int

const (
	// SourceLocal means the bytes are read from the cache store
	SourceLocal SourceKind = iota
	// SourceRemote means the bytes are fetched from the network
	SourceRemote
)

// String returns the source name
func (k SourceKind) String() string {
	switch k {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return fmt.Sprintf("source(%d)", int(k))
	}
}

// Action is one step of a download plan
type Action struct {
	Kind  SourceKind
	Range ByteRange
}

// LocalAction creates an action served from the cache store
func LocalAction(r ByteRange) Action {
	return Action{Kind: SourceLocal, Range: r}
}

// RemoteAction creates an action served from the network
func RemoteAction(r ByteRange) Action {
	return Action{Kind: SourceRemote, Range: r}
}

// String returns a readable representation of the action
func (a Action) String() string {
	return a.Kind.String() + a.Range.String()
}

// DownloadPlan is an ordered list of actions covering one requested range
type DownloadPlan []Action

// Validate checks that the plan covers requested exactly, in ascending order,
// without gaps or overlaps.
func (p DownloadPlan) Validate(requested ByteRange) error {
	cursor := requested.Offset
	for i, a := range p {
		if a.Range.IsEmpty() {
			return NewPlanningError(fmt.Sprintf("action %d is empty", i))
		}
		if a.Range.Offset != cursor {
			return NewPlanningError(fmt.Sprintf("action %d starts at %d, expected %d", i, a.Range.Offset, cursor))
		}
		cursor = a.Range.End()
	}
	if cursor != requested.End() {
		return NewPlanningError(fmt.Sprintf("plan ends at %d, expected %d", cursor, requested.End()))
	}
	return nil
}

// TotalLength returns the number of bytes the plan delivers
func (p DownloadPlan) TotalLength() uint64 {
	var total uint64
	for _, a := range p {
		total += a.Range.Length
	}
	return total
}

// RemoteBytes returns how many bytes the plan fetches from the network
func (p DownloadPlan) RemoteBytes() uint64 {
	var total uint64
	for _, a := range p {
		if a.Kind == SourceRemote {
			total += a.Range.Length
		}
	}
	return total
}
