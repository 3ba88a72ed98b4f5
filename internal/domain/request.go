package domain

import "fmt"

// ReadRequest is a consumer request for bytes of one resource.
// With ToEnd set, Length is ignored and the request covers everything from
// Offset to the end of the resource.
type ReadRequest struct {
	Offset uint64
	Length uint64
	ToEnd  bool
}

// NewRangeRequest creates a request for [offset, offset+length)
func NewRangeRequest(offset, length uint64) ReadRequest {
	return ReadRequest{Offset: offset, Length: length}
}

// NewToEndRequest creates a request for everything from offset to the end
func NewToEndRequest(offset uint64) ReadRequest {
	return ReadRequest{Offset: offset, ToEnd: true}
}

// Resolve returns the byte range the request covers for a resource of the
// given total length. A negative length means unknown; a to-end request then
// cannot be resolved and ok is false.
func (r ReadRequest) Resolve(contentLength int64) (ByteRange, bool) {
	if r.ToEnd {
		if contentLength < 0 {
			return ByteRange{Offset: r.Offset}, false
		}
		return RangeFromBounds(r.Offset, uint64(contentLength)), true
	}

	rng := NewByteRange(r.Offset, r.Length)
	if contentLength >= 0 && rng.End() > uint64(contentLength) {
		rng = RangeFromBounds(r.Offset, uint64(contentLength))
	}
	return rng, true
}

// String returns a readable representation of the request
func (r ReadRequest) String() string {
	if r.ToEnd {
		return fmt.Sprintf("[%d, end)", r.Offset)
	}
	return NewByteRange(r.Offset, r.Length).String()
}
