// Package types defines the wire format for raw lifelog records as delivered
// by the remote transcript source. The ingestion pipeline converts these into
// the storage model; nothing here touches the database.
package types

import (
	"fmt"
	"time"
)

// SegmentType tags the kind of content a segment carries.
type SegmentType string

const (
	SegmentHeading    SegmentType = "heading"
	SegmentBlockquote SegmentType = "blockquote"
	SegmentParagraph  SegmentType = "paragraph"
)

// RawLifelog is one transcript unit from the external source. StartTime is the
// only required timestamp; everything else is optional.
type RawLifelog struct {
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"markdown,omitempty"`
	Creator   string       `json:"creator,omitempty"`
	StartTime string       `json:"startTime"`
	EndTime   string       `json:"endTime,omitempty"`
	Contents  []RawSegment `json:"contents,omitempty"`
}

// RawSegment is one speech or text segment inside a lifelog. Offsets are
// milliseconds relative to the lifelog start.
type RawSegment struct {
	Type          SegmentType `json:"type,omitempty"`
	Content       string      `json:"content,omitempty"`
	SpeakerName   string      `json:"speakerName,omitempty"`
	SpeakerID     string      `json:"speakerIdentifier,omitempty"`
	StartTime     string      `json:"startTime,omitempty"`
	EndTime       string      `json:"endTime,omitempty"`
	StartOffsetMS *int64      `json:"startOffsetMs,omitempty"`
	EndOffsetMS   *int64      `json:"endOffsetMs,omitempty"`
}

// ParseTimestamp parses an ISO-8601 timestamp from the source. Fractional
// seconds are accepted; anything else is a parse error.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Span returns the parsed start and optional end time of the record. An
// unparseable end time is treated as absent rather than an error; a missing
// or unparseable start time fails the record.
func (l *RawLifelog) Span() (start time.Time, end *time.Time, err error) {
	start, err = ParseTimestamp(l.StartTime)
	if err != nil {
		return time.Time{}, nil, err
	}
	if l.EndTime != "" {
		if t, perr := ParseTimestamp(l.EndTime); perr == nil {
			end = &t
		}
	}
	return start, end, nil
}
