// Package httprange parses and formats single-range HTTP Range and
// Content-Range header values.
package httprange

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnsupportedUnit is returned for range units other than bytes
	ErrUnsupportedUnit = errors.New("unsupported range unit")
	// ErrMultipleRanges is returned for multi-range requests
	ErrMultipleRanges = errors.New("multiple ranges are not supported")
	// ErrMalformed is returned for unparsable header values
	ErrMalformed = errors.New("malformed range")
	// ErrUnsatisfiable is returned for ranges outside the resource
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Request is a parsed Range header.
// End is inclusive and -1 means "to end of resource". A suffix range
// ("bytes=-500") has Start -1 and Suffix set.
type Request struct {
	Start  int64
	End    int64
	Suffix int64
}

// IsSuffix returns true for a "last N bytes" range
func (r Request) IsSuffix() bool {
	return r.Start < 0
}

// IsOpenEnded returns true for a "from Start to end of resource" range
func (r Request) IsOpenEnded() bool {
	return r.Start >= 0 && (r.End < 0 || r.End == math.MaxInt64)
}

// Resolve turns the request into a half-open [start, end) window of a
// resource with the given total length. A negative total means unknown, in
// which case suffix ranges cannot be resolved and open-ended ranges return end -1.
func (r Request) Resolve(total int64) (start, end int64, err error) {
	if r.IsSuffix() {
		if total < 0 {
			return 0, 0, fmt.Errorf("%w: suffix range with unknown length", ErrUnsatisfiable)
		}
		suffix := r.Suffix
		if suffix > total {
			suffix = total
		}
		return total - suffix, total, nil
	}

	if total >= 0 && r.Start >= total {
		return 0, 0, fmt.Errorf("%w: start %d beyond length %d", ErrUnsatisfiable, r.Start, total)
	}

	end = total
	if !r.IsOpenEnded() {
		end = r.End + 1
	}
	if total >= 0 && end > total {
		end = total
	}
	return r.Start, end, nil
}

// ParseRange parses a single-range Range header value.
// Supports "bytes=start-end", "bytes=start-" and "bytes=-suffix".
func ParseRange(header string) (Request, error) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "bytes=") {
		return Request{}, ErrUnsupportedUnit
	}

	spec := strings.TrimSpace(strings.TrimPrefix(header, "bytes="))
	if strings.Contains(spec, ",") {
		return Request{}, ErrMultipleRanges
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return Request{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// Suffix range: "-500" means last 500 bytes
		suffix, err := strconv.ParseInt(last, 10, 64)
		if err != nil || suffix <= 0 {
			return Request{}, fmt.Errorf("%w: invalid suffix %q", ErrMalformed, last)
		}
		return Request{Start: -1, End: -1, Suffix: suffix}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return Request{}, fmt.Errorf("%w: invalid start %q", ErrMalformed, first)
	}

	if last == "" {
		return Request{Start: start, End: -1}, nil
	}

	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("%w: invalid end %q", ErrMalformed, last)
	}
	if end < start {
		return Request{}, fmt.Errorf("%w: start %d > end %d", ErrMalformed, start, end)
	}
	if end == math.MaxInt64 {
		// No resource reaches this offset
		return Request{Start: start, End: -1}, nil
	}
	return Request{Start: start, End: end}, nil
}

// ContentRange is a parsed Content-Range header.
// Total is -1 when the server sent "*". Start and End are -1 for the
// unsatisfied form "bytes */total".
type ContentRange struct {
	Start int64
	End   int64
	Total int64
}

// ParseContentRange parses a Content-Range header value
func ParseContentRange(header string) (ContentRange, error) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "bytes ") {
		return ContentRange{}, ErrUnsupportedUnit
	}
	spec := strings.TrimSpace(strings.TrimPrefix(header, "bytes "))

	window, totalStr, ok := strings.Cut(spec, "/")
	if !ok {
		return ContentRange{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}

	cr := ContentRange{Start: -1, End: -1, Total: -1}
	if totalStr != "*" {
		total, err := strconv.ParseInt(totalStr, 10, 64)
		if err != nil || total < 0 {
			return ContentRange{}, fmt.Errorf("%w: invalid total %q", ErrMalformed, totalStr)
		}
		cr.Total = total
	}

	if window == "*" {
		return cr, nil
	}

	first, last, ok := strings.Cut(window, "-")
	if !ok {
		return ContentRange{}, fmt.Errorf("%w: %q", ErrMalformed, header)
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return ContentRange{}, fmt.Errorf("%w: invalid start %q", ErrMalformed, first)
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return ContentRange{}, fmt.Errorf("%w: invalid end %q", ErrMalformed, last)
	}
	if cr.Total >= 0 && end >= cr.Total {
		return ContentRange{}, fmt.Errorf("%w: end %d beyond total %d", ErrMalformed, end, cr.Total)
	}

	cr.Start, cr.End = start, end
	return cr, nil
}

// FormatContentRange formats a Content-Range header value.
// A negative total is written as "*".
func FormatContentRange(start, end, total int64) string {
	if total < 0 {
		return fmt.Sprintf("bytes %d-%d/*", start, end)
	}
	return fmt.Sprintf("bytes %d-%d/%d", start, end, total)
}

// FormatUnsatisfied formats the Content-Range value of a 416 response
func FormatUnsatisfied(total int64) string {
	if total < 0 {
		return "bytes */*"
	}
	return fmt.Sprintf("bytes */%d", total)
}
