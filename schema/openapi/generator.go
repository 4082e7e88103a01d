// Package openapi publishes the record types of a client as an OpenAPI
// document: one component schema per type and CRUD paths per resource.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	records "github.com/goliatone/go-records"
	"gopkg.in/yaml.v3"
)

// Generator builds OpenAPI documents for record types.
type Generator struct {
	config generatorConfig
}

// NewGenerator constructs a generator configured by opts.
func NewGenerator(opts ...GeneratorOption) *Generator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Generator{config: cfg}
}

// Generate returns the document for the types defined on client.
func (g *Generator) Generate(client *records.Client) (map[string]any, error) {
	if client == nil {
		return nil, fmt.Errorf("openapi: client cannot be nil")
	}
	names := g.config.types
	if len(names) == 0 {
		names = client.Types()
	}

	schemas := map[string]any{}
	paths := map[string]any{}
	for _, name := range names {
		t, err := client.Type(name)
		if err != nil {
			return nil, fmt.Errorf("openapi: %w", err)
		}
		component := shortName(t.Name())
		if _, exists := schemas[component]; exists {
			return nil, fmt.Errorf("openapi: component %q defined by more than one type", component)
		}
		schemas[component] = t.Schema()
		for path, item := range g.resourcePaths(t, component) {
			paths[path] = item
		}
	}

	document := map[string]any{
		"openapi": g.config.openAPIVersion,
		"info":    g.buildInfo(),
		"paths":   paths,
	}
	if len(schemas) > 0 {
		document["components"] = map[string]any{
			"schemas": schemas,
		}
	}
	if err := validateDocument(document); err != nil {
		return nil, err
	}
	return document, nil
}

// GenerateJSON renders the document as indented JSON.
func (g *Generator) GenerateJSON(client *records.Client) ([]byte, error) {
	document, err := g.Generate(client)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(document, "", "  ")
}

// GenerateYAML renders the document as YAML.
func (g *Generator) GenerateYAML(client *records.Client) ([]byte, error) {
	document, err := g.Generate(client)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(document)
}

func (g *Generator) buildInfo() map[string]any {
	info := map[string]any{
		"title":   g.config.info.Title,
		"version": g.config.info.Version,
	}
	if g.config.info.Description != "" {
		info["description"] = g.config.info.Description
	}
	return info
}

func (g *Generator) resourcePaths(t *records.RecordType, component string) map[string]any {
	resource := t.ResourceName()
	plural := resource + "s"
	ref := map[string]any{"$ref": records.SchemaRefPrefix + component}
	list := map[string]any{"type": "array", "items": ref}
	keyParam := map[string]any{
		"name":        "key",
		"in":          "path",
		"required":    true,
		"schema":      map[string]any{"type": "string"},
		"description": fmt.Sprintf("Value of %s.%s", component, t.PrimaryKey()),
	}

	collection := map[string]any{
		"get": g.operation("list_"+plural, "List "+plural, nil, nil, g.body(list), "200"),
		"post": g.operation("create_"+resource, "Create a "+resource, nil,
			g.requestBody(ref), g.body(ref), "201"),
	}
	member := map[string]any{
		"get": g.operation("get_"+resource, "Find a "+resource+" by key",
			[]any{keyParam}, nil, g.body(ref), "200", "404"),
		"put": g.operation("update_"+resource, "Update a "+resource,
			[]any{keyParam}, g.requestBody(ref), g.body(ref), "200", "404"),
		"delete": g.operation("delete_"+resource, "Delete a "+resource,
			[]any{keyParam}, nil, nil, "204", "404"),
	}

	base := g.config.basePath + "/" + plural
	return map[string]any{
		base:            collection,
		base + "/{key}": member,
	}
}

func (g *Generator) operation(id, summary string, params []any, request, response map[string]any, statuses ...string) map[string]any {
	responses := map[string]any{}
	for i, status := range statuses {
		resp := map[string]any{"description": defaultDescription(status)}
		if i == 0 && response != nil {
			resp["content"] = response
		}
		responses[status] = resp
	}
	extra := make([]string, 0, len(g.config.responses))
	for status := range g.config.responses {
		extra = append(extra, status)
	}
	sort.Strings(extra)
	for _, status := range extra {
		resp, _ := responses[status].(map[string]any)
		if resp == nil {
			resp = map[string]any{}
			responses[status] = resp
		}
		if desc := g.config.responses[status].Description; desc != "" {
			resp["description"] = desc
		} else if _, ok := resp["description"]; !ok {
			resp["description"] = defaultDescription(status)
		}
	}

	op := map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses":   responses,
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	if request != nil {
		op["requestBody"] = request
	}
	return op
}

func (g *Generator) body(schema map[string]any) map[string]any {
	return map[string]any{
		g.config.contentType: map[string]any{"schema": schema},
	}
}

func (g *Generator) requestBody(schema map[string]any) map[string]any {
	return map[string]any{
		"required": true,
		"content":  g.body(schema),
	}
}

func defaultDescription(status string) string {
	switch status {
	case "200":
		return "OK"
	case "201":
		return "Created"
	case "204":
		return "No Content"
	case "400":
		return "Bad Request"
	case "404":
		return "Not Found"
	case "500":
		return "Internal Server Error"
	}
	return "Response " + status
}

func shortName(name string) string {
	if idx := strings.LastIndexAny(name, "./:"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func validateDocument(document map[string]any) error {
	info, _ := document["info"].(map[string]any)
	if info == nil {
		return fmt.Errorf("openapi: document missing info section")
	}
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title must be set")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version must be set")
	}
	paths, _ := document["paths"].(map[string]any)
	if len(paths) == 0 {
		return fmt.Errorf("openapi: document must define at least one path")
	}
	for pathKey, pathValue := range paths {
		pathItem, _ := pathValue.(map[string]any)
		if len(pathItem) == 0 {
			return fmt.Errorf("openapi: path %q missing operations", pathKey)
		}
		for method, operationValue := range pathItem {
			operation, _ := operationValue.(map[string]any)
			if operation == nil {
				return fmt.Errorf("openapi: operation %s %s invalid payload", method, pathKey)
			}
			if id, _ := operation["operationId"].(string); id == "" {
				return fmt.Errorf("openapi: operation %s %s missing operationId", method, pathKey)
			}
			if responses, _ := operation["responses"].(map[string]any); len(responses) == 0 {
				return fmt.Errorf("openapi: operation %s %s missing responses", method, pathKey)
			}
		}
	}
	return nil
}
