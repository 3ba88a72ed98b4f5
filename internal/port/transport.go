package port

import (
	"context"
	"io"

	"github.com/vertextoedge/media-cache/internal/domain"
)

// Response is the header and body of one ranged fetch
type Response struct {
	// ContentLength is the total length of the resource, or
	// domain.UnknownContentLength if the server did not reveal it
	ContentLength int64

	// ContentType is the MIME type reported by the server
	ContentType string

	// ByteRangeSupported is true if the server honours Range requests
	ByteRangeSupported bool

	// Offset is the resource offset of the first body byte. It differs from
	// the requested offset when the server ignored the Range header.
	Offset uint64

	// Body yields the response bytes in order
	Body io.ReadCloser
}

// Transport is the network collaborator issuing ranged GET requests
type Transport interface {
	// Fetch requests r of url. An empty r requests everything from r.Offset
	// to the end of the resource. Cancelling ctx aborts the transfer with a
	// cancelled domain.NetworkError.
	Fetch(ctx context.Context, url string, r domain.ByteRange) (*Response, error)
}
