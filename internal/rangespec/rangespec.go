// Package rangespec translates an HTTP Range header into an (offset,
// length) pair against a known object size, and formats the matching
// Content-Range response header.
package rangespec

import (
	"fmt"
	"strconv"
	"strings"

	s3err "github.com/basingate/basingate/internal/errors"
)

// Spec is a parsed byte-range request: either "first-last" (Last may be
// absent, meaning "to the end") or a trailing "-suffix" request.
type Spec struct {
	start *uint64 // nil when the request is suffix-only
	end   *uint64 // nil when the request has no explicit last byte
}

// Parse parses the value of an HTTP Range header, e.g. "bytes=0-499" or
// "bytes=-500". Only a single range is supported; multi-range requests are
// rejected with ErrInvalidRange, matching the gateway's documented scope.
func Parse(header string) (Spec, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Spec{}, s3err.ErrInvalidRange
	}
	body := header[len(prefix):]
	if strings.Contains(body, ",") {
		return Spec{}, s3err.ErrInvalidRange
	}

	dash := strings.IndexByte(body, '-')
	if dash < 0 {
		return Spec{}, s3err.ErrInvalidRange
	}
	firstStr, lastStr := body[:dash], body[dash+1:]

	if firstStr == "" {
		// Suffix range: "-<length>".
		length, err := strconv.ParseUint(lastStr, 10, 64)
		if err != nil {
			return Spec{}, s3err.ErrInvalidRange
		}
		return Spec{end: &length}, nil
	}

	first, err := strconv.ParseUint(firstStr, 10, 64)
	if err != nil {
		return Spec{}, s3err.ErrInvalidRange
	}
	if lastStr == "" {
		return Spec{start: &first}, nil
	}
	last, err := strconv.ParseUint(lastStr, 10, 64)
	if err != nil {
		return Spec{}, s3err.ErrInvalidRange
	}
	return Spec{start: &first, end: &last}, nil
}

// Offsets resolves the parsed range against an object of the given size, returning
// a byte offset and length. The arithmetic matches the backend's range
// translator exactly, including its boundary-clamping rules:
//
//   - "first-last" with first <= last: offset = first; length runs to the
//     end of the object if the object is no larger than last+1, otherwise
//     length = last-first+1. Requires first < size.
//   - "first-" (no last given): offset = first; length = size - first.
//     Requires first < size.
//   - "-suffix" (no first given): the last `suffix` bytes of the object,
//     clamped to the whole object when suffix >= size. Requires suffix > 0.
func (s Spec) Offsets(size uint64) (offset, length uint64, err error) {
	switch {
	case s.start != nil && s.end != nil:
		start, end := *s.start, *s.end
		if start > end || start >= size {
			return 0, 0, s3err.ErrInvalidRange
		}
		if size <= end {
			return start, size - start, nil
		}
		return start, end - start + 1, nil

	case s.start != nil && s.end == nil:
		start := *s.start
		if start >= size {
			return 0, 0, s3err.ErrInvalidRange
		}
		return start, size - start, nil

	case s.start == nil && s.end != nil:
		suffix := *s.end
		if suffix == 0 {
			return 0, 0, s3err.ErrInvalidRange
		}
		if suffix <= size {
			return size - suffix, suffix, nil
		}
		return 0, size, nil

	default:
		return 0, 0, s3err.ErrInvalidRange
	}
}

// ContentRangeHeader formats the "Content-Range" response header value for
// a resolved (offset, length) pair against the full object size.
func ContentRangeHeader(offset, length, size uint64) string {
	if length == 0 {
		return fmt.Sprintf("bytes */%d", size)
	}
	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, size)
}

// BackendParam renders the parsed range in the compact form the backend's
// Get RPC expects: "<first>-<last>", "<first>-", or "-<suffix>" — the
// client's request passed through unmodified, not the resolved
// offset/length.
func (s Spec) BackendParam() string {
	switch {
	case s.start != nil && s.end != nil:
		return fmt.Sprintf("%d-%d", *s.start, *s.end)
	case s.start != nil:
		return fmt.Sprintf("%d-", *s.start)
	default:
		return fmt.Sprintf("-%d", *s.end)
	}
}
