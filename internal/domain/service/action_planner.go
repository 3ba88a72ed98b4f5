package service

import (
	"github.com/vertextoedge/media-cache/internal/domain"
)

// DefaultChunkSize bounds the size of a single local read
const DefaultChunkSize uint64 = 200 * 1024

// ActionPlanner is a domain service that splits a requested range into
// local-read and remote-fetch actions
type ActionPlanner struct {
	chunkSize uint64
}

// NewActionPlanner creates a new ActionPlanner.
// A zero chunk size selects DefaultChunkSize.
func NewActionPlanner(chunkSize uint64) *ActionPlanner {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &ActionPlanner{chunkSize: chunkSize}
}

// ChunkSize returns the local read chunk size
func (p *ActionPlanner) ChunkSize() uint64 {
	return p.chunkSize
}

// Plan computes the download plan for requested against index
func (p *ActionPlanner) Plan(requested domain.ByteRange, index *domain.SegmentIndex) domain.DownloadPlan {
	return Plan(requested, index, p.chunkSize)
}

// Plan covers requested exactly with actions in ascending order.
//
// Cached sub-segments become Local actions of at most chunkSize bytes. Every
// gap, including the one after the last cached sub-segment up to the end of
// requested, becomes a single Remote action. A zero-length request yields an
// empty plan.
func Plan(requested domain.ByteRange, index *domain.SegmentIndex, chunkSize uint64) domain.DownloadPlan {
	if requested.IsEmpty() {
		return nil
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	var hits []domain.ByteRange
	if index != nil {
		hits = index.Intersect(requested)
	}
	if len(hits) == 0 {
		return domain.DownloadPlan{domain.RemoteAction(requested)}
	}

	plan := make(domain.DownloadPlan, 0, 2*len(hits)+1)
	cursor := requested.Offset

	for _, hit := range hits {
		if hit.Offset > cursor {
			plan = append(plan, domain.RemoteAction(domain.RangeFromBounds(cursor, hit.Offset)))
		}
		for off := hit.Offset; off < hit.End(); off += chunkSize {
			plan = append(plan, domain.LocalAction(domain.RangeFromBounds(off, min(off+chunkSize, hit.End()))))
		}
		cursor = hit.End()
	}

	if cursor < requested.End() {
		plan = append(plan, domain.RemoteAction(domain.RangeFromBounds(cursor, requested.End())))
	}

	return plan
}
