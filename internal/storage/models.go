package storage

import (
	"fmt"
	"time"
)

// Status is the processing state of a conversation. It is a closed set,
// validated at the storage boundary.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known processing states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusError:
		return true
	}
	return false
}

// Conversation is one ingested transcript unit. ExternalLogID is the natural
// key from the source; ID is the surrogate key and survives re-fetches.
type Conversation struct {
	ID             int64
	ExternalLogID  string
	Title          string
	StartTime      time.Time
	EndTime        *time.Time
	CreatorID      string
	RawText        string
	LogicalEventID *string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// validate enforces the conversation invariants that SQLite cannot express.
func (c *Conversation) validate() error {
	if c.ExternalLogID == "" {
		return fmt.Errorf("%w: external log id is required", ErrConstraintViolation)
	}
	if c.StartTime.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrConstraintViolation)
	}
	if c.EndTime != nil && c.EndTime.Before(c.StartTime) {
		return fmt.Errorf("%w: end time precedes start time", ErrConstraintViolation)
	}
	if c.Status != "" && !c.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrConstraintViolation, c.Status)
	}
	return nil
}

// Speaker is a participant identity, keyed by the stable external identifier
// the source attaches to utterances.
type Speaker struct {
	ID            int64
	ExternalID    string
	Name          string
	IsPrimaryUser bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Utterance is one speech or text segment within a conversation. SpeakerID is
// nullable and nulled out when the speaker is deleted; the owning conversation
// cascades its deletion.
type Utterance struct {
	ID             int64
	ConversationID int64
	SpeakerID      *int64
	Text           string
	StartTime      *time.Time
	EndTime        *time.Time
	StartOffsetMS  *int64
	EndOffsetMS    *int64
	Seq            int
	ContentType    string
	CreatedAt      time.Time
}

// ClusterState is the persisted cursor of the logical-event grouper, so that
// clustering can resume across process restarts.
type ClusterState struct {
	LastEndTime        *time.Time
	LastConversationID int64
	CurrentGroupID     *string
	UpdatedAt          time.Time
}

// StoreStatus contains statistics about the database.
type StoreStatus struct {
	Conversations int
	Speakers      int
	Utterances    int
	LogicalEvents int
	Pending       int
	SizeMB        float64
	FTSIndexBuilt bool
}
