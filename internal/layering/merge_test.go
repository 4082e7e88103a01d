package layering

import (
	"reflect"
	"testing"
)

type typeOptions struct {
	PrimaryKey string
	Resource   string
}

func TestMergeLayersStrongestWins(t *testing.T) {
	strong := map[string]typeOptions{
		"models.Post": {PrimaryKey: "slug"},
	}
	weak := map[string]typeOptions{
		"models.Post": {PrimaryKey: "id", Resource: "posts"},
		"models.User": {PrimaryKey: "uid"},
	}

	got := MergeLayers(strong, weak)
	want := map[string]typeOptions{
		"models.Post": {PrimaryKey: "slug", Resource: "posts"},
		"models.User": {PrimaryKey: "uid"},
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("merged mismatch:\nwant: %#v\n got: %#v", want, got)
	}
}

func TestMergeLayersZeroInput(t *testing.T) {
	type sample struct {
		Value int
	}
	var zero sample
	if got := MergeLayers[sample](); got != zero {
		t.Fatalf("expected MergeLayers() to return zero value, got %+v", got)
	}
}

func TestCloneDetachesNestedValues(t *testing.T) {
	src := map[string]any{
		"tags": []any{"a", "b"},
		"meta": map[string]any{"k": "v"},
	}
	dst := Clone(src)

	dst["tags"].([]any)[0] = "changed"
	dst["meta"].(map[string]any)["k"] = "changed"

	if src["tags"].([]any)[0] != "a" {
		t.Fatalf("expected source slice untouched, got %v", src["tags"])
	}
	if src["meta"].(map[string]any)["k"] != "v" {
		t.Fatalf("expected source map untouched, got %v", src["meta"])
	}
}

func TestCloneScalars(t *testing.T) {
	if got := Clone(42); got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
	var nilMap map[string]any
	if got := Clone(nilMap); got != nil {
		t.Fatalf("expected nil map, got %v", got)
	}
}

func TestCloneDetachesStructMaps(t *testing.T) {
	type layer struct {
		Name  string
		Types map[string]typeOptions
	}
	src := layer{Name: "file", Types: map[string]typeOptions{"models.Post": {PrimaryKey: "slug"}}}
	dst := Clone(src)
	dst.Types["models.User"] = typeOptions{PrimaryKey: "uid"}

	if len(src.Types) != 1 {
		t.Fatalf("expected source map untouched, got %v", src.Types)
	}
	if dst.Name != "file" || dst.Types["models.Post"].PrimaryKey != "slug" {
		t.Fatalf("unexpected clone %+v", dst)
	}
}
