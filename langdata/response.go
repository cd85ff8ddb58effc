package langdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when a response body is not valid JSON
// or its record array cannot be decoded.
var ErrMalformedResponse = errors.New("malformed api response")

// StatusOK is the envelope code of a successful Lingo response.
const StatusOK = 200

// ResponseError is an API envelope reporting a code other than 200.
type ResponseError struct {
	Code    float64
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned code %v", e.Code)
	}
	return fmt.Sprintf("api returned code %v: %s", e.Code, e.Message)
}

// PathError reports a dataPath that does not lead to a record array.
type PathError struct {
	// Path is the full dotted path as configured.
	Path string
	// Segment is the segment that could not be resolved.
	Segment string
	// Reason describes what was found instead.
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("data path %q: segment %q: %s", e.Path, e.Segment, e.Reason)
}

// defaultDataPath is where records live when a resource has no dataPath.
const defaultDataPath = "data"

type envelope struct {
	Code    *float64 `json:"code"`
	Message string   `json:"message"`
}

// Decode checks the envelope of one response body and returns the records
// found at dataPath. An empty dataPath means the top-level "data" field.
func Decode(body []byte, dataPath string) ([]Record, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Code == nil || *env.Code != StatusOK {
		code := 0.0
		if env.Code != nil {
			code = *env.Code
		}
		return nil, &ResponseError{Code: code, Message: env.Message}
	}

	if dataPath == "" {
		dataPath = defaultDataPath
	}
	node, err := Resolve(body, dataPath)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(node)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		segs := strings.Split(dataPath, ".")
		return nil, &PathError{Path: dataPath, Segment: segs[len(segs)-1], Reason: "value is not an array"}
	}

	var records []Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: decoding records at %q: %v", ErrMalformedResponse, dataPath, err)
	}
	return records, nil
}

// Resolve walks a dotted path through nested JSON objects and returns the
// raw value it points at. Every segment must name a field of an object;
// a missing field or a non-object on the way yields a *PathError.
func Resolve(doc []byte, path string) (json.RawMessage, error) {
	node := json.RawMessage(doc)
	for _, seg := range strings.Split(path, ".") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(node, &obj); err != nil || obj == nil {
			return nil, &PathError{Path: path, Segment: seg, Reason: "parent is not an object"}
		}
		next, ok := obj[seg]
		if !ok {
			return nil, &PathError{Path: path, Segment: seg, Reason: "field not found"}
		}
		node = next
	}
	return node, nil
}

// Aggregate decodes every response with the dataPath at the same index and
// reduces all records, in order, into a single LanguageData. The first
// failure aborts the whole aggregation.
func Aggregate(bodies [][]byte, dataPaths []string) (*LanguageData, error) {
	if len(bodies) != len(dataPaths) {
		return nil, fmt.Errorf("aggregate: %d responses for %d resources", len(bodies), len(dataPaths))
	}
	var all []Record
	for i, body := range bodies {
		records, err := Decode(body, dataPaths[i])
		if err != nil {
			return nil, fmt.Errorf("resource #%d: %w", i+1, err)
		}
		all = append(all, records...)
	}
	d := New()
	d.Apply(all)
	return d, nil
}
