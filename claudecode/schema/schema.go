// Package schema generates JSON Schema documents for Go structs that tool
// authors want to use as a request's output object, so callers don't have
// to hand-write the schema passed to claudecode.RequestParams.
package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Reflector is the shared reflector used by Of and OfIndent. FieldNameTag
// defaults to "json", matching how tool authors already tag their
// request/response structs.
var Reflector = &jsonschema.Reflector{
	FieldNameTag:              "json",
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// Of reflects v's type into a JSON Schema document suitable for
// claudecode.RequestParams.OutputSchema.
func Of(v any) (json.RawMessage, error) {
	s := Reflector.Reflect(v)
	return json.Marshal(s)
}

// OfIndent is Of with indented output, useful for logging or embedding the
// schema in documentation.
func OfIndent(v any) (json.RawMessage, error) {
	s := Reflector.Reflect(v)
	return json.MarshalIndent(s, "", "  ")
}
