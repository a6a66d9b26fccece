// Package schemas embeds the JSON Schemas for the run manifests written next to each run's artifacts.
package schemas

import _ "embed"

// Outcome is the schema for outcome.json.
//
//go:embed outcome.schema.json
var Outcome string

// RequestInfo is the schema for request_info.json.
//
//go:embed request_info.schema.json
var RequestInfo string
