package domain

import "fmt"

// ByteRange is a half-open byte interval [Offset, Offset+Length).
type ByteRange struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// NewByteRange creates a ByteRange from an offset and a length
func NewByteRange(offset, length uint64) ByteRange {
	return ByteRange{Offset: offset, Length: length}
}

// RangeFromBounds creates a ByteRange covering [start, end).
// An end before start yields an empty range at start.
func RangeFromBounds(start, end uint64) ByteRange {
	if end <= start {
		return ByteRange{Offset: start}
	}
	return ByteRange{Offset: start, Length: end - start}
}

// End returns the exclusive end offset
func (r ByteRange) End() uint64 {
	return r.Offset + r.Length
}

// IsEmpty returns true if the range covers no bytes
func (r ByteRange) IsEmpty() bool {
	return r.Length == 0
}

// Contains returns true if other lies entirely within r
func (r ByteRange) Contains(other ByteRange) bool {
	return other.Offset >= r.Offset && other.End() <= r.End()
}

// Intersect returns the overlap of r and other.
// The second return value is false when they do not overlap.
func (r ByteRange) Intersect(other ByteRange) (ByteRange, bool) {
	start := max(r.Offset, other.Offset)
	end := min(r.End(), other.End())
	if end <= start {
		return ByteRange{}, false
	}
	return ByteRange{Offset: start, Length: end - start}, true
}

// Touches returns true if r and other overlap or are contiguous
func (r ByteRange) Touches(other ByteRange) bool {
	return r.Offset <= other.End() && other.Offset <= r.End()
}

// HeaderValue formats the range as an inclusive HTTP Range header value
func (r ByteRange) HeaderValue() string {
	if r.Length == 0 {
		return fmt.Sprintf("bytes=%d-", r.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.End()-1)
}

// String returns a readable representation of the range
func (r ByteRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}
