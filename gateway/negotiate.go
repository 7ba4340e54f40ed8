// Package gateway implements the HTTP front end: content negotiation,
// OpenAPI-driven routing, schema validation, pagination, and long-running
// task acceptance, per §4.C.
package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MediaType is a negotiated content type, decomposed into its vendor parts
// when present: application/vnd.<family>.<lone>.v<major>.<minor>.<patch>+yaml.
type MediaType struct {
	Encoding string // "yaml" or "json"
	Family   string // non-empty for a vendor media type
	Lone     string
	Version  string
}

var vendorRE = regexp.MustCompile(`^application/vnd\.([^.]+)\.([^.]+)\.v(\d+\.\d+\.\d+)\+(yaml|json)$`)

// ParseMediaType decomposes a Content-Type/Accept value into a MediaType, or
// reports ok=false when it is not one of the three recognized shapes.
func ParseMediaType(raw string) (MediaType, bool) {
	raw = strings.TrimSpace(strings.Split(raw, ";")[0])
	switch raw {
	case "application/yaml":
		return MediaType{Encoding: "yaml"}, true
	case "application/json":
		return MediaType{Encoding: "json"}, true
	}
	if m := vendorRE.FindStringSubmatch(raw); m != nil {
		return MediaType{Family: m[1], Lone: m[2], Version: m[3], Encoding: m[4]}, true
	}
	return MediaType{}, false
}

// Negotiate picks an encoder/decoder pair for an incoming request's Accept
// header, per §4.C content negotiation rules.
func Negotiate(accept, method string) (MediaType, error) {
	if accept == "" || accept == "*/*" {
		if method == "GET" || method == "OPTIONS" {
			return MediaType{Encoding: "yaml"}, nil
		}
		return MediaType{}, errNotAcceptable
	}
	for _, candidate := range strings.Split(accept, ",") {
		if mt, ok := ParseMediaType(strings.TrimSpace(candidate)); ok {
			return mt, nil
		}
	}
	return MediaType{}, errNotAcceptable
}

var errNotAcceptable = fmt.Errorf("not acceptable")

// IsNotAcceptable reports whether err is the 406 sentinel from Negotiate.
func IsNotAcceptable(err error) bool { return err == errNotAcceptable }

// Encode serializes v in the given media type's encoding.
func Encode(mt MediaType, v any) ([]byte, error) {
	switch mt.Encoding {
	case "json":
		return json.Marshal(v)
	default:
		return yaml.Marshal(v)
	}
}

// Decode parses raw into v using the content type's encoding. An unknown
// Content-Type with a non-empty body is a 415, surfaced by the caller.
func Decode(mt MediaType, raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	switch mt.Encoding {
	case "json":
		return json.Unmarshal(raw, v)
	default:
		return yaml.Unmarshal(raw, v)
	}
}

// ContentType renders mt back into a wire Content-Type header value.
func (mt MediaType) ContentType() string {
	if mt.Lone == "" {
		return "application/" + mt.Encoding
	}
	return fmt.Sprintf("application/vnd.%s.%s.v%s+%s", mt.Family, mt.Lone, mt.Version, mt.Encoding)
}
