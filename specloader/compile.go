package specloader

import (
	"fmt"
	"strings"
)

var knownVerbs = map[string]bool{"get": true, "create": true, "update": true, "delete": true}

// Compile turns one fully $ref-resolved OpenAPI document into a set of
// OperationSpecs, one per (path, method).
func Compile(lone string, doc map[string]any, openapiDirEmpty bool) (map[string]*OperationSpec, error) {
	paths, _ := doc["paths"].(map[string]any)
	ops := make(map[string]*OperationSpec)

	for pathTemplate, rawItem := range paths {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		pathLevelParams := extractParameters(item["parameters"])

		for method, rawOp := range item {
			if !isHTTPMethod(method) {
				continue
			}
			opDoc, ok := rawOp.(map[string]any)
			if !ok {
				continue
			}
			spec, err := compileOperation(lone, pathTemplate, method, opDoc, pathLevelParams, openapiDirEmpty)
			if err != nil {
				return nil, fmt.Errorf("compiling %s %s: %w", method, pathTemplate, err)
			}
			ops[spec.OperationID] = spec
		}
	}
	return ops, nil
}

func isHTTPMethod(m string) bool {
	switch strings.ToLower(m) {
	case "get", "put", "post", "delete", "patch", "options", "head":
		return true
	default:
		return false
	}
}

func compileOperation(lone, pathTemplate, method string, opDoc map[string]any, pathLevelParams []Parameter, openapiDirEmpty bool) (*OperationSpec, error) {
	operationID, _ := opDoc["operationId"].(string)
	if operationID == "" {
		operationID = strings.ToLower(method) + "_" + pathTemplate
	}

	params := append([]Parameter{}, pathLevelParams...)
	params = append(params, extractParameters(opDoc["parameters"])...)

	segments, pathParams, queryParams := splitParams(pathTemplate, params)

	spec := &OperationSpec{
		Lone:            lone,
		OperationID:     operationID,
		Method:          strings.ToUpper(method),
		PathTemplate:    pathTemplate,
		Segments:        segments,
		PathParams:      pathParams,
		QueryParams:     queryParams,
		ResponseSchemas: make(map[string]map[string]any),
		CustomVerb:      !knownVerbs[verbFromOperationID(operationID)],
	}

	if ext, ok := opDoc["x-laf-journaled"].(bool); ok {
		spec.Journaled = ext
	}
	if ext, ok := opDoc["x-laf-long-running"].(bool); ok {
		spec.LongRunning = ext
	}

	if rb, ok := opDoc["requestBody"].(map[string]any); ok {
		required, _ := rb["required"].(bool)
		spec.BodyRequired = required || openapiDirEmpty
		content, _ := rb["content"].(map[string]any)
		spec.BodySchemas = make(map[string]map[string]any, len(content))
		for mediaType, rawMT := range content {
			mt, _ := rawMT.(map[string]any)
			if schema, ok := mt["schema"].(map[string]any); ok {
				spec.BodySchemas[mediaType] = schema
			}
		}
	} else {
		// No requestBody declared at all: an empty/missing openapi directory
		// forces the conservative "body required" stance so the CLI always
		// prompts interactively rather than silently sending an empty body.
		spec.BodyRequired = openapiDirEmpty
	}

	if responses, ok := opDoc["responses"].(map[string]any); ok {
		for status, rawResp := range responses {
			resp, _ := rawResp.(map[string]any)
			content, _ := resp["content"].(map[string]any)
			for _, rawMT := range content {
				mt, _ := rawMT.(map[string]any)
				if schema, ok := mt["schema"].(map[string]any); ok {
					spec.ResponseSchemas[status] = schema
					break
				}
			}
		}
	}

	spec.InputSchema = synthesizeInputSchema(spec)
	return spec, nil
}

// verbFromOperationID extracts the framework verb from an operationId such
// as "foo.get" or "foo.create"; custom verbs are anything else.
func verbFromOperationID(operationID string) string {
	if idx := strings.LastIndexByte(operationID, '.'); idx >= 0 {
		return operationID[idx+1:]
	}
	return operationID
}

func extractParameters(raw any) []Parameter {
	list, _ := raw.([]any)
	out := make([]Parameter, 0, len(list))
	for _, rawParam := range list {
		p, ok := rawParam.(map[string]any)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		in, _ := p["in"].(string)
		required, _ := p["required"].(bool)
		style, _ := p["style"].(string)
		explode, _ := p["explode"].(bool)

		typ := "string"
		if schema, ok := p["schema"].(map[string]any); ok {
			if t, ok := schema["type"].(string); ok {
				typ = t
			}
		}

		var loc ParamLocation
		var defaultStyle ParamStyle
		switch in {
		case "path":
			loc = LocPath
			defaultStyle = StyleSimple
			required = true // path params are always required
		case "query":
			loc = LocQuery
			defaultStyle = StyleForm
		default:
			continue
		}
		if style == "" {
			style = string(defaultStyle)
		}

		out = append(out, Parameter{
			Name: name, In: loc, Style: ParamStyle(style),
			Required: required, Type: typ, Explode: explode,
		})
	}
	return out
}

// splitParams records "{name}" placeholders in pathTemplate as parameter
// RouteSegments (untyped; RouteTypeSuffix maps a type via macroTypeMap), and
// separates path/query parameters.
func splitParams(pathTemplate string, params []Parameter) ([]RouteSegment, []Parameter, []Parameter) {
	byName := make(map[string]Parameter, len(params))
	var query []Parameter
	for _, p := range params {
		if p.In == LocPath {
			byName[p.Name] = p
		} else {
			query = append(query, p)
		}
	}

	var segments []RouteSegment
	var pathParams []Parameter
	for _, piece := range strings.Split(strings.Trim(pathTemplate, "/"), "/") {
		if piece == "" {
			continue
		}
		if strings.HasPrefix(piece, "{") && strings.HasSuffix(piece, "}") {
			name := strings.Trim(piece, "{}")
			p := byName[name]
			if p.Name == "" {
				p = Parameter{Name: name, In: LocPath, Style: StyleSimple, Required: true, Type: "string"}
			}
			segments = append(segments, RouteSegment{Param: name})
			pathParams = append(pathParams, p)
		} else {
			segments = append(segments, RouteSegment{Literal: piece})
		}
	}
	return segments, pathParams, query
}

// RouteTypeSuffix returns the concrete typed route segment kind for a path
// parameter's declared OpenAPI type, per macroTypeMap.
func RouteTypeSuffix(openapiType string) string {
	if t, ok := macroTypeMap[openapiType]; ok {
		return t
	}
	return "string"
}

// synthesizeInputSchema builds the {path:{...}, query:{...}, body:{...}}
// input validator schema with additionalProperties=false and explicit
// required, per §4.A.
func synthesizeInputSchema(spec *OperationSpec) map[string]any {
	pathProps := make(map[string]any)
	var pathRequired []string
	for _, p := range spec.PathParams {
		pathProps[p.Name] = map[string]any{"type": p.Type}
		pathRequired = append(pathRequired, p.Name)
	}

	queryProps := make(map[string]any)
	var queryRequired []string
	for _, p := range spec.QueryParams {
		queryProps[p.Name] = map[string]any{"type": p.Type}
		if p.Required {
			queryRequired = append(queryRequired, p.Name)
		}
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":                 "object",
				"properties":           pathProps,
				"required":             pathRequired,
				"additionalProperties": false,
			},
			"query": map[string]any{
				"type":                 "object",
				"properties":           queryProps,
				"required":             queryRequired,
				"additionalProperties": false,
			},
		},
		"additionalProperties": false,
	}

	if len(spec.BodySchemas) > 0 || spec.BodyRequired {
		props := schema["properties"].(map[string]any)
		if bodySchema, ok := spec.BodySchemas["application/json"]; ok {
			props["body"] = bodySchema
		} else {
			props["body"] = map[string]any{}
		}
		if spec.BodyRequired {
			schema["required"] = []string{"body"}
		}
	}
	return schema
}
