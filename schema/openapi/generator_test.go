package openapi

import (
	"encoding/json"
	"strings"
	"testing"

	records "github.com/goliatone/go-records"
	"gopkg.in/yaml.v3"
)

func newBlogClient(t *testing.T) *records.Client {
	t.Helper()
	client, err := records.NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Define("models.Author", []records.FieldDescriptor{
		records.Attr("name", "string"),
		records.HasMany("posts", "models.BlogPost"),
	}); err != nil {
		t.Fatalf("define author: %v", err)
	}
	if _, err := client.Define("models.BlogPost", []records.FieldDescriptor{
		records.Attr("title", "string"),
		records.Attr("views", "integer"),
		records.BelongsTo("author", "models.Author"),
	}, records.WithPrimaryKey("slug")); err != nil {
		t.Fatalf("define post: %v", err)
	}
	return client
}

func TestNewGeneratorOptions(t *testing.T) {
	g := NewGenerator(
		WithOpenAPIVersion("3.1.0"),
		WithInfo("Blog", "2.0.0", WithInfoDescription("blog records")),
		WithBasePath("api/v1/"),
		WithContentType("application/vnd.api+json"),
		WithResponse("500", "Server error"),
		WithTypes(" models.Author ", ""),
	)

	if got := g.config.openAPIVersion; got != "3.1.0" {
		t.Fatalf("expected openapi version 3.1.0, got %q", got)
	}
	if got := g.config.info.Title; got != "Blog" {
		t.Fatalf("expected info title Blog, got %q", got)
	}
	if got := g.config.info.Description; got != "blog records" {
		t.Fatalf("expected info description, got %q", got)
	}
	if got := g.config.basePath; got != "/api/v1" {
		t.Fatalf("expected base path /api/v1, got %q", got)
	}
	if got := g.config.contentType; got != "application/vnd.api+json" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := g.config.responses["500"].Description; got != "Server error" {
		t.Fatalf("expected 500 response description, got %q", got)
	}
	if len(g.config.types) != 1 || g.config.types[0] != "models.Author" {
		t.Fatalf("unexpected types %v", g.config.types)
	}
}

func TestGenerateDocumentsEveryType(t *testing.T) {
	doc, err := NewGenerator().Generate(newBlogClient(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if doc["openapi"] != "3.0.3" {
		t.Fatalf("unexpected version %v", doc["openapi"])
	}
	schemas := doc["components"].(map[string]any)["schemas"].(map[string]any)
	if len(schemas) != 2 {
		t.Fatalf("expected 2 component schemas, got %d", len(schemas))
	}
	post := schemas["BlogPost"].(map[string]any)
	if post["x-primary-key"] != "slug" {
		t.Fatalf("expected slug primary key, got %v", post["x-primary-key"])
	}

	paths := doc["paths"].(map[string]any)
	for _, path := range []string{"/authors", "/authors/{key}", "/blog_posts", "/blog_posts/{key}"} {
		if _, ok := paths[path]; !ok {
			t.Fatalf("missing path %s in %v", path, keys(paths))
		}
	}

	collection := paths["/blog_posts"].(map[string]any)
	if id := collection["get"].(map[string]any)["operationId"]; id != "list_blog_posts" {
		t.Fatalf("unexpected list operation id %v", id)
	}
	create := collection["post"].(map[string]any)
	if _, ok := create["requestBody"]; !ok {
		t.Fatalf("create operation must carry a request body")
	}
	if _, ok := create["responses"].(map[string]any)["201"]; !ok {
		t.Fatalf("create operation must answer 201")
	}

	member := paths["/blog_posts/{key}"].(map[string]any)
	del := member["delete"].(map[string]any)
	responses := del["responses"].(map[string]any)
	if _, ok := responses["204"]; !ok {
		t.Fatalf("delete operation must answer 204")
	}
	if _, ok := responses["204"].(map[string]any)["content"]; ok {
		t.Fatalf("delete response must not carry content")
	}
	params := member["get"].(map[string]any)["parameters"].([]any)
	if desc := params[0].(map[string]any)["description"]; desc != "Value of BlogPost.slug" {
		t.Fatalf("unexpected key parameter description %v", desc)
	}
}

func TestGenerateRestrictsTypesAndAddsResponses(t *testing.T) {
	g := NewGenerator(
		WithTypes("models.Author"),
		WithBasePath("/api"),
		WithResponse("500", "Server error"),
		WithResponse("404", "Missing author"),
	)
	doc, err := g.Generate(newBlogClient(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	paths := doc["paths"].(map[string]any)
	if len(paths) != 2 {
		t.Fatalf("expected author paths only, got %v", keys(paths))
	}
	get := paths["/api/authors/{key}"].(map[string]any)["get"].(map[string]any)
	responses := get["responses"].(map[string]any)
	if desc := responses["404"].(map[string]any)["description"]; desc != "Missing author" {
		t.Fatalf("expected overridden 404 description, got %v", desc)
	}
	if desc := responses["500"].(map[string]any)["description"]; desc != "Server error" {
		t.Fatalf("expected added 500 response, got %v", desc)
	}
	if _, ok := responses["200"].(map[string]any)["content"]; !ok {
		t.Fatalf("expected 200 response content to survive")
	}
}

func TestGenerateErrors(t *testing.T) {
	if _, err := NewGenerator().Generate(nil); err == nil {
		t.Fatalf("expected error for nil client")
	}

	empty, err := records.NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := NewGenerator().Generate(empty); err == nil || !strings.Contains(err.Error(), "at least one path") {
		t.Fatalf("expected missing paths error, got %v", err)
	}

	if _, err := NewGenerator(WithTypes("models.Missing")).Generate(newBlogClient(t)); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestGenerateJSONAndYAML(t *testing.T) {
	client := newBlogClient(t)
	g := NewGenerator(WithInfo("Blog", ""))

	raw, err := g.GenerateJSON(client)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if title := decoded["info"].(map[string]any)["title"]; title != "Blog" {
		t.Fatalf("unexpected title %v", title)
	}

	out, err := g.GenerateYAML(client)
	if err != nil {
		t.Fatalf("GenerateYAML: %v", err)
	}
	var fromYAML map[string]any
	if err := yaml.Unmarshal(out, &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if version := fromYAML["info"].(map[string]any)["version"]; version != "1.0.0" {
		t.Fatalf("unexpected version %v", version)
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	return out
}
