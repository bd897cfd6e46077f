package entity

import (
	"strings"
	"time"
)

// SourceRecord is a raw row from the external log source
type SourceRecord struct {
	Sender   string
	Nickname string
	LogTime  int64 // unix seconds
	Body     string
}

// Time returns the record's log time
func (r SourceRecord) Time() time.Time {
	return time.Unix(r.LogTime, 0).UTC()
}

// IsEmpty reports whether the record carries no text
func (r SourceRecord) IsEmpty() bool {
	return strings.TrimSpace(r.Body) == ""
}

// ParseSender splits "identity/origin" on the first separator
func ParseSender(sender string) (identity, origin string, err error) {
	identity, origin, ok := strings.Cut(sender, "/")
	if !ok || identity == "" {
		return "", "", ErrMalformedSender
	}
	return identity, origin, nil
}
