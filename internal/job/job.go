// Package job models the queue messages exchanged between pipeline stages.
//
// A message is a JSON object with a "type" discriminator. Decode peeks the
// discriminator, validates the per-variant required fields once, fills in
// defaults and returns a typed Job. Everything past the queue boundary works
// with the typed variants only.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is the job discriminator.
type Kind string

const (
	KindTransform Kind = "transform"
	KindClean     Kind = "clean"
)

var (
	// ErrUnknownType marks a well-formed message whose type no stage here
	// owns. Runners acknowledge and drop it.
	ErrUnknownType = errors.New("job: unknown type")
	// ErrMissingField marks a message lacking a required field.
	ErrMissingField = errors.New("job: missing required field")
	// ErrMalformed marks a body that is not a JSON object.
	ErrMalformed = errors.New("job: malformed message")
)

// Transform asks the merge stage to build the merged CSV for one corr_id.
type Transform struct {
	CorrID      string `json:"corr_id"`
	RawBucket   string `json:"raw_bucket,omitempty"`
	XformBucket string `json:"xform_bucket,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
}

// Clean asks the clean stage to clean and load one merged CSV.
type Clean struct {
	CorrID      string `json:"corr_id"`
	XformBucket string `json:"xform_bucket,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	GoldDBPath  string `json:"gold_db_path,omitempty"`
	GoldTable   string `json:"gold_table,omitempty"`
}

// Job is the decoded tagged union. Exactly one of Transform or Clean is set,
// matching Kind.
type Job struct {
	Kind      Kind
	Transform *Transform
	Clean     *Clean
}

// CorrID returns the correlation id of whichever variant is set.
func (j Job) CorrID() string {
	switch {
	case j.Transform != nil:
		return j.Transform.CorrID
	case j.Clean != nil:
		return j.Clean.CorrID
	}
	return ""
}

// Defaults supplies values for optional fields absent from a message.
type Defaults struct {
	RawBucket   string
	XformBucket string
	Prefix      string
	GoldDBPath  string
	GoldTable   string
}

// Peek returns the raw type discriminator without decoding the rest.
func Peek(body []byte) Kind {
	return Kind(strings.TrimSpace(gjson.GetBytes(body, "type").String()))
}

// Decode parses body into a typed Job. An unknown type yields ErrUnknownType
// (wrapped) together with a Job whose Kind is the raw value.
func Decode(body []byte, d Defaults) (Job, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return Job{}, ErrMalformed
	}
	root := gjson.ParseBytes(body)
	str := func(key string) string { return strings.TrimSpace(root.Get(key).String()) }
	first := func(vals ...string) string {
		for _, v := range vals {
			if v != "" {
				return v
			}
		}
		return ""
	}

	kind := Kind(str("type"))
	corr := str("corr_id")

	switch kind {
	case KindTransform:
		if corr == "" {
			return Job{Kind: kind}, fmt.Errorf("%w: corr_id", ErrMissingField)
		}
		t := &Transform{
			CorrID:      corr,
			RawBucket:   first(str("raw_bucket"), d.RawBucket),
			XformBucket: first(str("xform_bucket"), str("clean_bucket"), d.XformBucket),
			Prefix:      strings.Trim(first(str("prefix"), d.Prefix), "/"),
		}
		if t.XformBucket == "" {
			return Job{Kind: kind}, fmt.Errorf("%w: xform_bucket", ErrMissingField)
		}
		if t.RawBucket == "" {
			return Job{Kind: kind}, fmt.Errorf("%w: raw_bucket", ErrMissingField)
		}
		return Job{Kind: kind, Transform: t}, nil

	case KindClean:
		if corr == "" {
			return Job{Kind: kind}, fmt.Errorf("%w: corr_id", ErrMissingField)
		}
		c := &Clean{
			CorrID:      corr,
			XformBucket: first(str("xform_bucket"), d.XformBucket),
			Prefix:      strings.Trim(first(str("prefix"), d.Prefix), "/"),
			GoldDBPath:  first(str("gold_db_path"), d.GoldDBPath),
			GoldTable:   first(str("gold_table"), d.GoldTable),
		}
		if c.XformBucket == "" {
			return Job{Kind: kind}, fmt.Errorf("%w: xform_bucket", ErrMissingField)
		}
		return Job{Kind: kind, Clean: c}, nil

	default:
		return Job{Kind: kind}, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

type transformEnvelope struct {
	Type Kind `json:"type"`
	*Transform
}

type cleanEnvelope struct {
	Type Kind `json:"type"`
	*Clean
}

// Encode serializes j with its type discriminator.
func Encode(j Job) ([]byte, error) {
	switch {
	case j.Transform != nil:
		return json.Marshal(transformEnvelope{Type: KindTransform, Transform: j.Transform})
	case j.Clean != nil:
		return json.Marshal(cleanEnvelope{Type: KindClean, Clean: j.Clean})
	}
	return nil, fmt.Errorf("job: encode: empty job")
}

// NewClean wraps c as a Job.
func NewClean(c Clean) Job { return Job{Kind: KindClean, Clean: &c} }

// NewTransform wraps t as a Job.
func NewTransform(t Transform) Job { return Job{Kind: KindTransform, Transform: &t} }
