// Package docs embeds the OpenAPI description served next to the Swagger UI.
package docs

import _ "embed"

//go:embed openapi.json
var OpenAPI []byte
