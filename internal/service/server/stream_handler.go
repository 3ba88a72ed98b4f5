package server

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/service/session"
	"github.com/vertextoedge/media-cache/internal/util/httprange"
)

var errRangeNotSatisfiable = errors.New("range not satisfiable")

// StreamHandler serves media resources through their sessions: GET /stream?url=<u>
type StreamHandler struct {
	registry *session.Registry
	logger   *zap.Logger
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler(registry *session.Registry, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		logger:   logger,
	}
}

// HandleStream translates an HTTP range request into a session request and
// streams the delivered bytes in order
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, "url parameter required", http.StatusBadRequest)
		return
	}

	s, err := h.registry.Open(rawURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rng, ranged, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		writeUnsatisfied(w, s.Snapshot().ContentLength)
		return
	}

	// A suffix range needs the total length before it can be resolved
	if ranged && rng.IsSuffix() && s.Snapshot().ContentLength < 0 {
		err := h.registry.Serve(r.Context(), rawURL, domain.NewRangeRequest(0, 1), nil)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	req, err := toReadRequest(rng, ranged, s.Snapshot().ContentLength)
	if err != nil {
		writeUnsatisfied(w, s.Snapshot().ContentLength)
		return
	}

	out := &stream{
		w:       w,
		rc:      http.NewResponseController(w),
		session: s,
		req:     req,
		ranged:  ranged,
	}

	err = h.registry.Serve(r.Context(), rawURL, req, out.deliver)
	if !out.started {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		// Nothing delivered: an empty resource or a range past its end
		if writeErr := out.writeHeader(); errors.Is(writeErr, errRangeNotSatisfiable) {
			writeUnsatisfied(w, s.Snapshot().ContentLength)
		}
		return
	}

	if err != nil && !domain.IsCancelled(err) {
		h.logger.Warn("stream aborted",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("url", s.URL()),
			zap.Stringer("request", req),
			zap.Int64("sent", out.sent),
			zap.Error(err))
	}
}

// writeError maps a session error to a response status
func (h *StreamHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidResourceURL):
		status = http.StatusBadRequest
	case domain.IsResourceBusy(err):
		w.Header().Set("Retry-After", "1")
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedContentType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrRegistryClosed), errors.Is(err, domain.ErrSessionClosed):
		status = http.StatusServiceUnavailable
	case domain.IsCancelled(err):
		if r.Context().Err() != nil {
			// Client went away
			return
		}
		// Superseded by a newer request for the same resource
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRange):
		total, _ := domain.UnsatisfiableTotal(err)
		h.logger.Debug("range refused by origin",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeUnsatisfied(w, total)
		return
	case domain.IsNetworkError(err):
		status = http.StatusBadGateway
	}

	h.logger.Debug("stream request failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("kind", domain.ErrorKind(err)),
		zap.Int("status", status),
		zap.Error(err))
	http.Error(w, err.Error(), status)
}

// stream writes delivered bytes to the response, sending the headers with the first chunk
type stream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	session *session.ResourceSession
	req     domain.ReadRequest
	ranged  bool
	started bool
	sent    int64
}

func (s *stream) deliver(data []byte, _ domain.SourceKind) error {
	if !s.started {
		if err := s.writeHeader(); err != nil {
			return err
		}
	}
	n, err := s.w.Write(data)
	s.sent += int64(n)
	if err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// writeHeader sends the status line and headers. The session snapshot is
// taken here because the total length is often learned from the first response.
func (s *stream) writeHeader() error {
	snap := s.session.Snapshot()
	total := snap.ContentLength

	if s.ranged && total >= 0 && s.req.Offset >= uint64(total) {
		return errRangeNotSatisfiable
	}
	s.started = true

	h := s.w.Header()
	contentType := snap.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")

	if !s.ranged {
		if total >= 0 {
			h.Set("Content-Length", strconv.FormatInt(total, 10))
		}
		s.w.WriteHeader(http.StatusOK)
		return nil
	}

	start := int64(s.req.Offset)
	end := int64(-1)
	switch {
	case !s.req.ToEnd:
		end = start + int64(s.req.Length)
		if total >= 0 && end > total {
			end = total
		}
	case total >= 0:
		end = total
	}

	if end < 0 {
		// Open-ended with no known length: the end is only known once the origin closes
		if start == 0 {
			s.w.WriteHeader(http.StatusOK)
		} else {
			s.w.WriteHeader(http.StatusPartialContent)
		}
		return nil
	}

	h.Set("Content-Range", httprange.FormatContentRange(start, end-1, total))
	h.Set("Content-Length", strconv.FormatInt(end-start, 10))
	s.w.WriteHeader(http.StatusPartialContent)
	return nil
}

// parseRangeHeader parses a Range header. Headers this server does not
// handle, such as other units or multiple ranges, are ignored and the whole
// resource is served.
func parseRangeHeader(header string) (httprange.Request, bool, error) {
	if header == "" {
		return httprange.Request{}, false, nil
	}
	rng, err := httprange.ParseRange(header)
	switch {
	case err == nil:
		return rng, true, nil
	case errors.Is(err, httprange.ErrUnsupportedUnit), errors.Is(err, httprange.ErrMultipleRanges):
		return httprange.Request{}, false, nil
	default:
		return httprange.Request{}, false, err
	}
}

// toReadRequest turns a parsed Range header into a session request for a
// resource of the given total length (negative when unknown)
func toReadRequest(rng httprange.Request, ranged bool, total int64) (domain.ReadRequest, error) {
	if !ranged {
		return domain.NewToEndRequest(0), nil
	}

	start, end, err := rng.Resolve(total)
	if err != nil {
		return domain.ReadRequest{}, err
	}
	if rng.IsOpenEnded() {
		return domain.NewToEndRequest(uint64(start)), nil
	}
	return domain.NewRangeRequest(uint64(start), uint64(end-start)), nil
}

func writeUnsatisfied(w http.ResponseWriter, total int64) {
	w.Header().Set("Content-Range", httprange.FormatUnsatisfied(total))
	http.Error(w, "Range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
}
