package domain

import (
	"encoding/base64"
	"strconv"
)

// DefaultMaxResults is the page size used when none is specified.
const DefaultMaxResults = 20

// MaxMaxResults caps the page size.
const MaxMaxResults = 500

// PageRequest holds pagination parameters for run history listings.
type PageRequest struct {
	MaxResults int
	PageToken  string // opaque token (base64-encoded offset)
}

// Offset decodes the page token into an integer offset.
// Returns 0 if the token is empty or invalid.
func (p PageRequest) Offset() int {
	if p.PageToken == "" {
		return 0
	}
	decoded, err := base64.StdEncoding.DecodeString(p.PageToken)
	if err != nil {
		return 0
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// Limit returns the effective page size, clamped to [1, MaxMaxResults].
func (p PageRequest) Limit() int {
	if p.MaxResults <= 0 {
		return DefaultMaxResults
	}
	if p.MaxResults > MaxMaxResults {
		return MaxMaxResults
	}
	return p.MaxResults
}

// NextPageToken returns the token for the page after offset+limit, or ""
// when total has been reached.
func NextPageToken(offset, limit int, total int64) string {
	next := offset + limit
	if int64(next) >= total {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(next)))
}
