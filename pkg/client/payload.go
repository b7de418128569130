package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// Upstream sentinel fields.
const (
	// SentinelError marks a payload with no usable data.
	SentinelError = "Error Message"

	// SentinelNote is the classic rate-limit advisory.
	SentinelNote = "Note"

	// SentinelInformation is the newer advisory field used for quota notices.
	SentinelInformation = "Information"
)

// ErrMalformedPayload indicates a JSON-looking body that failed to parse.
var ErrMalformedPayload = errors.New("malformed upstream payload")

// PayloadKind tags the shape of a decoded upstream response.
type PayloadKind string

const (
	// KindTimeSeries is a date-keyed series ("Time Series (Daily)", "Technical Analysis: RSI").
	KindTimeSeries PayloadKind = "time_series"

	// KindRecord is a single record ("Global Quote", flat company overview).
	KindRecord PayloadKind = "record"

	// KindList is an array-bearing response ("data", "feed", reports).
	KindList PayloadKind = "list"

	// KindText is a raw non-JSON body (CSV datatype).
	KindText PayloadKind = "text"

	// KindDocument is any JSON shape not modeled above.
	KindDocument PayloadKind = "document"
)

var (
	seriesPrefixes = []string{"Time Series", "Technical Analysis", "Weekly Time Series", "Monthly Time Series", "Weekly Adjusted Time Series", "Monthly Adjusted Time Series"}
	recordKeys     = []string{"Global Quote", "Realtime Currency Exchange Rate"}
	listKeys       = []string{"data", "feed", "annualReports", "quarterlyReports", "annualEarnings", "quarterlyEarnings", "top_gainers", "bestMatches", "markets", "payload"}
)

// Payload is a decoded upstream response. Cached payloads are shared between
// callers and must be treated as read-only; use the shape package to derive
// modified copies.
type Payload struct {
	// ResourceType is the upstream function that produced the payload
	ResourceType string

	// Kind tags the response family
	Kind PayloadKind

	// Doc is the parsed JSON document (nil for KindText)
	Doc *gabs.Container

	// Text is the raw body for KindText
	Text string

	// Advisory holds the soft advisory message, if the upstream sent one
	Advisory string

	// errorMessage holds the hard error sentinel, if present
	errorMessage string
}

// ErrorMessage returns the upstream hard-error message, or "".
func (p *Payload) ErrorMessage() string {
	return p.errorMessage
}

// SeriesKeys returns the top-level keys holding date-keyed series, sorted.
func (p *Payload) SeriesKeys() []string {
	if p.Doc == nil {
		return nil
	}
	var keys []string
	for key := range p.Doc.ChildrenMap() {
		if isSeriesKey(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Data returns the decoded JSON value, or the raw text for text payloads.
func (p *Payload) Data() any {
	if p.Kind == KindText || p.Doc == nil {
		return p.Text
	}
	return p.Doc.Data()
}

// MarshalJSON encodes the payload data.
func (p *Payload) MarshalJSON() ([]byte, error) {
	if p.Kind == KindText || p.Doc == nil {
		return json.Marshal(p.Text)
	}
	return p.Doc.MarshalJSON()
}

// decodePayload parses an upstream body, detects sentinels and tags the kind.
func decodePayload(resourceType string, body []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return &Payload{ResourceType: resourceType, Kind: KindText, Text: string(body)}, nil
	}

	// Numbers stay json.Number so prices and strikes keep their exact text.
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	doc, err := gabs.ParseJSONDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedPayload)
	}

	p := &Payload{ResourceType: resourceType, Doc: doc}
	p.errorMessage = sentinelText(doc, SentinelError)
	if note := sentinelText(doc, SentinelNote); note != "" {
		p.Advisory = note
	} else {
		p.Advisory = sentinelText(doc, SentinelInformation)
	}
	p.Kind = classify(doc)

	return p, nil
}

// sentinelText returns the text of a top-level sentinel field. Missing,
// null or empty fields yield "".
func sentinelText(doc *gabs.Container, field string) string {
	if _, isObject := doc.Data().(map[string]any); !isObject {
		return ""
	}
	v := doc.Search(field).Data()
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		return fmt.Sprint(val)
	}
}

// classify tags the response family from its top-level keys.
func classify(doc *gabs.Container) PayloadKind {
	obj, ok := doc.Data().(map[string]any)
	if !ok {
		if _, isArray := doc.Data().([]any); isArray {
			return KindList
		}
		return KindDocument
	}

	for key := range obj {
		if isSeriesKey(key) {
			return KindTimeSeries
		}
	}
	for _, key := range recordKeys {
		if _, ok := obj[key]; ok {
			return KindRecord
		}
	}
	for _, key := range listKeys {
		if _, isArray := obj[key].([]any); isArray {
			return KindList
		}
	}
	if _, ok := obj["Symbol"]; ok {
		return KindRecord
	}
	return KindDocument
}

func isSeriesKey(key string) bool {
	for _, prefix := range seriesPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
