package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Publication is one sensor reading event as stored in the publications table.
type Publication struct {
	// RowID is the storage surrogate key (publications.id).
	RowID int64 `json:"-"`

	// PublicationID is the stable external identifier.
	PublicationID ExternalID `json:"publication_id"`

	// Publication is the canonical pub/sub message (text or JSON text).
	Publication string `json:"publication"`

	// SubscriptionMatches is the raw 8-byte match bitmask.
	SubscriptionMatches []byte `json:"-"`
}

// Subscription is one standing query from the subscriptions table.
type Subscription struct {
	ID                    int64  `json:"id"`
	Complexity            string `json:"complexity"`
	SQLSubscription       string `json:"sql_subscription"`
	NLPSubscription       string `json:"nlp_subscription"`
	PublicationMatchCount int64  `json:"publication_match_count"`
}

// SubscriptionText is one projected row of the subscription corpus.
type SubscriptionText struct {
	ID   int64  `json:"subscription_id"`
	Text string `json:"subscription"`
}

// Match is one resolved (subscription id, text) pair for a publication.
type Match struct {
	SubscriptionID int64  `json:"subscription_id"`
	Subscription   string `json:"subscription"`
}

// ExternalID is a publication identifier whose storage type is not fixed.
// Integer values round-trip as JSON numbers, everything else as strings.
type ExternalID struct {
	value any
}

// IntID returns an ExternalID holding an integer.
func IntID(v int64) ExternalID { return ExternalID{value: v} }

// StringID returns an ExternalID holding a string.
func StringID(v string) ExternalID { return ExternalID{value: v} }

// String renders the identifier for logs and warnings.
func (e ExternalID) String() string {
	switch v := e.value.(type) {
	case nil:
		return "<null>"
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Scan implements sql.Scanner.
func (e *ExternalID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		e.value = nil
	case int64:
		e.value = v
	case float64:
		if v == float64(int64(v)) {
			e.value = int64(v)
		} else {
			e.value = strconv.FormatFloat(v, 'f', -1, 64)
		}
	case []byte:
		e.value = string(v)
	case string:
		e.value = v
	default:
		return fmt.Errorf("unsupported publication_id type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (e ExternalID) Value() (driver.Value, error) {
	return e.value, nil
}

// MarshalJSON implements json.Marshaler.
func (e ExternalID) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.value)
}

// FirstPage is the keyset cursor for the first page of a scan. A query
// after FirstPage has no lower bound, so rows with id <= 0 are included.
const FirstPage int64 = math.MinInt64

// Bounds describes the key range of the publications table.
type Bounds struct {
	MinID int64
	MaxID int64
	Count int64
}

// Span returns the number of keys in [MinID, MaxID].
func (b Bounds) Span() int64 {
	if b.Count == 0 {
		return 0
	}
	return b.MaxID - b.MinID + 1
}
