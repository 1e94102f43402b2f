package recordings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRange means the header is malformed or multi-range; callers
	// serve the full content instead.
	ErrInvalidRange = errors.New("invalid range")
	// ErrUnsatisfiableRange means the range starts past the end of the asset.
	ErrUnsatisfiableRange = errors.New("unsatisfiable range")
)

// ByteRange is an inclusive byte span [Start, End].
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the span.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range header value for a 206 response.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a Range header against an asset of the given size.
// Only a single range is supported; multi-range requests come back as
// ErrInvalidRange and are treated as no range at all. A start past size-1 is
// ErrUnsatisfiableRange (416). An omitted end defaults to size-1; an end past
// the asset is clamped. Suffix ranges (bytes=-N) are honored.
func ParseRange(header string, size int64) (ByteRange, error) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) {
		return ByteRange{}, ErrInvalidRange
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return ByteRange{}, ErrInvalidRange
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return ByteRange{}, ErrInvalidRange
	}
	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	if startStr == "" {
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, ErrInvalidRange
		}
		if n > size {
			n = size
		}
		return ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, ErrInvalidRange
	}
	if start > size-1 {
		return ByteRange{}, ErrUnsatisfiableRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return ByteRange{}, ErrInvalidRange
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return ByteRange{Start: start, End: end}, nil
}
