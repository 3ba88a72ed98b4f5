package filesystem

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vertextoedge/media-cache/internal/domain"
	"github.com/vertextoedge/media-cache/internal/port"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const metadataVersion = 1

// metadataRecord is the on-disk layout of a metadata sidecar. Field order is
// fixed, so encoding a decoded record reproduces the same bytes.
type metadataRecord struct {
	Version            int                `json:"version"`
	URL                string             `json:"url"`
	ContentLength      int64              `json:"content_length"`
	ContentType        string             `json:"content_type"`
	ByteRangeSupported bool               `json:"byte_range_supported"`
	Segments           []domain.ByteRange `json:"segments"`
	BytesWritten       uint64             `json:"bytes_written"`
	WriteDurationNs    int64              `json:"write_duration_ns"`
	LastWriteNs        int64              `json:"last_write_duration_ns"`
}

// JSONCodec encodes metadata records as JSON
type JSONCodec struct{}

// Ensure JSONCodec implements port.MetadataCodec
var _ port.MetadataCodec = JSONCodec{}

// Encode serializes a metadata record
func (JSONCodec) Encode(meta *domain.CacheMetadata) ([]byte, error) {
	segments := meta.Segments.Segments()
	if segments == nil {
		segments = []domain.ByteRange{}
	}
	rec := metadataRecord{
		Version:            metadataVersion,
		URL:                meta.URL,
		ContentLength:      meta.ContentLength,
		ContentType:        meta.ContentType,
		ByteRangeSupported: meta.ByteRangeSupported,
		Segments:           segments,
		BytesWritten:       meta.BytesWritten,
		WriteDurationNs:    int64(meta.WriteDuration),
		LastWriteNs:        int64(meta.LastWriteDuration),
	}
	return json.Marshal(&rec)
}

// Decode parses a metadata record
func (JSONCodec) Decode(data []byte) (*domain.CacheMetadata, error) {
	var rec metadataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if rec.Version != metadataVersion {
		return nil, fmt.Errorf("unsupported metadata version %d", rec.Version)
	}
	if rec.URL == "" {
		return nil, fmt.Errorf("metadata record has no url")
	}

	meta := &domain.CacheMetadata{
		URL:                rec.URL,
		ContentLength:      rec.ContentLength,
		ContentType:        rec.ContentType,
		ByteRangeSupported: rec.ByteRangeSupported,
		Segments:           domain.NewSegmentIndex(rec.Segments...),
		BytesWritten:       rec.BytesWritten,
		WriteDuration:      time.Duration(rec.WriteDurationNs),
		LastWriteDuration:  time.Duration(rec.LastWriteNs),
	}
	return meta, nil
}
