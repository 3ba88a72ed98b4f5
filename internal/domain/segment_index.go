package domain

import "sort"

// SegmentIndex is the set of byte ranges already cached for one resource.
//
// Segments are kept sorted by offset and never overlap or touch: for any two
// neighbours a, b it holds that a.End() < b.Offset. Inserting a range merges it
// with every segment it overlaps or is adjacent to.
//
// SegmentIndex is not safe for concurrent use; the owning MediaWorker
// serializes access to it.
type SegmentIndex struct {
	segments []ByteRange
}

// NewSegmentIndex builds an index from arbitrary ranges, merging as needed
func NewSegmentIndex(ranges ...ByteRange) SegmentIndex {
	var idx SegmentIndex
	for _, r := range ranges {
		idx.AddCache(r)
	}
	return idx
}

// AddCache merges r into the index
func (s *SegmentIndex) AddCache(r ByteRange) {
	if r.IsEmpty() {
		return
	}

	// first segment that ends at or after r starts (overlapping or adjacent)
	i := sort.Search(len(s.segments), func(k int) bool {
		return s.segments[k].End() >= r.Offset
	})
	// first segment that starts strictly after r ends
	j := i
	for j < len(s.segments) && s.segments[j].Offset <= r.End() {
		j++
	}

	start, end := r.Offset, r.End()
	if i < j {
		start = min(start, s.segments[i].Offset)
		end = max(end, s.segments[j-1].End())
	}
	merged := RangeFromBounds(start, end)

	out := make([]ByteRange, 0, len(s.segments)-(j-i)+1)
	out = append(out, s.segments[:i]...)
	out = append(out, merged)
	out = append(out, s.segments[j:]...)
	s.segments = out
}

// Intersect returns the cached portions of r in ascending order, each clipped to r
func (s *SegmentIndex) Intersect(r ByteRange) []ByteRange {
	if r.IsEmpty() {
		return nil
	}
	i := sort.Search(len(s.segments), func(k int) bool {
		return s.segments[k].End() > r.Offset
	})

	var out []ByteRange
	for ; i < len(s.segments); i++ {
		seg := s.segments[i]
		if seg.Offset >= r.End() {
			break
		}
		if clipped, ok := seg.Intersect(r); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// Contains returns true if r is entirely covered by one cached segment
func (s *SegmentIndex) Contains(r ByteRange) bool {
	if r.IsEmpty() {
		return true
	}
	hits := s.Intersect(r)
	return len(hits) == 1 && hits[0] == r
}

// Clip drops every cached byte at or beyond limit
func (s *SegmentIndex) Clip(limit uint64) {
	out := s.segments[:0]
	for _, seg := range s.segments {
		if seg.Offset >= limit {
			break
		}
		if seg.End() > limit {
			seg = RangeFromBounds(seg.Offset, limit)
		}
		out = append(out, seg)
	}
	s.segments = out
}

// Reset empties the index
func (s *SegmentIndex) Reset() {
	s.segments = nil
}

// Segments returns a copy of the cached ranges
func (s *SegmentIndex) Segments() []ByteRange {
	if len(s.segments) == 0 {
		return nil
	}
	out := make([]ByteRange, len(s.segments))
	copy(out, s.segments)
	return out
}

// Len returns the number of disjoint segments
func (s *SegmentIndex) Len() int {
	return len(s.segments)
}

// CachedBytes returns the total number of cached bytes
func (s *SegmentIndex) CachedBytes() uint64 {
	var total uint64
	for _, seg := range s.segments {
		total += seg.Length
	}
	return total
}

// Clone returns a deep copy of the index
func (s *SegmentIndex) Clone() SegmentIndex {
	return SegmentIndex{segments: s.Segments()}
}
