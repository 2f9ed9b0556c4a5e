package export

import (
	"bytes"
	"encoding/json"
	"io"

	"golang.org/x/text/unicode/norm"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// PublicationDoc is one element of a sample export.
type PublicationDoc struct {
	PublicationID       model.ExternalID `json:"publication_id"`
	Publication         string           `json:"publication"`
	SubscriptionMatches []MatchDoc       `json:"subscription_matches"`
}

// MatchDoc is one resolved subscription inside a PublicationDoc.
type MatchDoc struct {
	SubscriptionID int64  `json:"subscription_id"`
	Subscription   string `json:"subscription"`
}

// SubscriptionDoc is one element of a subscription export.
type SubscriptionDoc struct {
	SubscriptionID int64  `json:"subscription_id"`
	Subscriptions  string `json:"subscriptions"`
}

// textFunc maps payload text before it is written.
type textFunc func(string) string

func identity(s string) string { return s }

func nfc(s string) string { return norm.NFC.String(s) }

func newPublicationDoc(p model.Publication, matches []model.Match, text textFunc) PublicationDoc {
	doc := PublicationDoc{
		PublicationID:       p.PublicationID,
		Publication:         text(p.Publication),
		SubscriptionMatches: make([]MatchDoc, len(matches)),
	}
	for i, m := range matches {
		doc.SubscriptionMatches[i] = MatchDoc{SubscriptionID: m.SubscriptionID, Subscription: text(m.Subscription)}
	}
	return doc
}

// arrayWriter streams a JSON array one element at a time.
type arrayWriter struct {
	w      io.Writer
	indent string
	buf    bytes.Buffer
	enc    *json.Encoder
	n      int
	err    error
}

func newArrayWriter(w io.Writer, indent string) *arrayWriter {
	a := &arrayWriter{w: w, indent: indent}
	a.enc = json.NewEncoder(&a.buf)
	a.enc.SetEscapeHTML(false)
	if indent != "" {
		a.enc.SetIndent(indent, indent)
	}
	return a
}

// Write appends one element.
func (a *arrayWriter) Write(v any) error {
	if a.err != nil {
		return a.err
	}

	a.buf.Reset()
	if a.n == 0 {
		a.buf.WriteString("[\n")
	} else {
		a.buf.WriteString(",\n")
	}
	a.buf.WriteString(a.indent)
	if err := a.enc.Encode(v); err != nil {
		a.err = err
		return err
	}
	// Encode terminates with a newline; the separator supplies our own.
	a.buf.Truncate(a.buf.Len() - 1)

	if _, err := a.w.Write(a.buf.Bytes()); err != nil {
		a.err = err
		return err
	}
	a.n++
	return nil
}

// Close terminates the array. An array with no elements is written as "[]".
func (a *arrayWriter) Close() error {
	if a.err != nil {
		return a.err
	}
	closing := "\n]\n"
	if a.n == 0 {
		closing = "[]\n"
	}
	_, err := io.WriteString(a.w, closing)
	return err
}

// Count returns the number of elements written.
func (a *arrayWriter) Count() int {
	return a.n
}

// countingWriter counts bytes passed through to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
