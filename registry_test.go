package records

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestRegisterIsIdempotentPerKind(t *testing.T) {
	r := NewFieldRegistry()
	if err := r.Register("models.Post", Attr("title", "string")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("models.Post", Attr("title", "string")); err != nil {
		t.Fatalf("expected identical registration to be a no-op, got %v", err)
	}
	if err := r.Register("models.Post", BelongsTo("title", "User")); !errors.Is(err, ErrConflictingField) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := r.FieldsOf("models.Post").Len(); got != 1 {
		t.Fatalf("expected one field, got %d", got)
	}
}

func TestRegisterAllIsAtomic(t *testing.T) {
	r := NewFieldRegistry()
	err := r.RegisterAll("models.Post",
		Attr("title", "string"),
		Attr("body", "string"),
		HasMany("body", "models.Comment"),
	)
	if !errors.Is(err, ErrConflictingField) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := r.RegisterAll("models.Post", Attr("summary", "string")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := r.FieldsOf("models.Post").Names(); len(got) != 1 || got[0] != "summary" {
		t.Fatalf("expected failed batch to leave nothing behind, got %v", got)
	}
}

func TestRegisterDetectsDeclarationMismatch(t *testing.T) {
	r := NewFieldRegistry()
	if err := r.RegisterAll("models.Post",
		Attr("title", "string"),
		BelongsTo("author", "models.User"),
	); err != nil {
		t.Fatalf("register: %v", err)
	}
	cases := []FieldDescriptor{
		Attr("title", "integer"),
		BelongsTo("author", "models.Admin"),
		HasMany("author", "models.User"),
	}
	for _, d := range cases {
		if err := r.Check("models.Post", d); !errors.Is(err, ErrConflictingField) {
			t.Fatalf("expected conflict for %s, got %v", d, err)
		}
	}
	err := r.Register("models.Post", HasMany("author", "models.User"))
	if err == nil || !strings.Contains(err.Error(), "relationship one models.User, got relationship many models.User") {
		t.Fatalf("expected cardinality in conflict message, got %v", err)
	}
}

func TestFieldsReturnDetachedDescriptors(t *testing.T) {
	r := NewFieldRegistry()
	if err := r.Register("models.Post", Attr("title", "string", WithFieldOption("max", 80))); err != nil {
		t.Fatalf("register: %v", err)
	}
	fields := r.FieldsOf("models.Post")
	d, _ := fields.Get("title")
	d.Options["max"] = 1
	fields.Each(func(d FieldDescriptor) bool {
		d.Options["max"] = 2
		return true
	})
	if got, _ := fields.Get("title"); got.Options["max"] != 80 {
		t.Fatalf("expected registry descriptor untouched, got %v", got.Options["max"])
	}
}

func TestRegistrySealsOnFirstRead(t *testing.T) {
	r := NewFieldRegistry()
	_ = r.Register("models.Post", Attr("title", "string"))
	if r.Sealed("models.Post") {
		t.Fatalf("expected unsealed before first read")
	}
	table := r.FieldsOf("models.Post")
	if !r.Sealed("models.Post") {
		t.Fatalf("expected sealed after first read")
	}
	if err := r.Register("models.Post", Attr("body", "string")); !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("expected sealed error, got %v", err)
	}
	if r.FieldsOf("models.Post") != table {
		t.Fatalf("expected memoized table")
	}
}

func TestRegisterValidatesDescriptors(t *testing.T) {
	r := NewFieldRegistry()
	cases := []struct {
		typeID string
		d      FieldDescriptor
	}{
		{"", Attr("x", "")},
		{"models.Post", Attr("", "")},
		{"models.Post", FieldDescriptor{Name: "x"}},
		{"models.Post", FieldDescriptor{Name: "x", Kind: KindRelationship}},
	}
	for _, tc := range cases {
		if err := r.Register(tc.typeID, tc.d); err == nil {
			t.Fatalf("expected error for %q %v", tc.typeID, tc.d)
		}
	}
}

func TestRegisterStructTags(t *testing.T) {
	type Post struct {
		Title    string `record:"title,attr=string"`
		Author   any    `record:"author,belongsTo=User"`
		Comments any    `record:"comments,hasMany=Comment"`
		Draft    bool   `record:",attr=boolean"`
		Skipped  string `record:"-"`
		Plain    string
	}
	r := NewFieldRegistry()
	if err := r.RegisterStruct("models.Post", &Post{}); err != nil {
		t.Fatalf("register struct: %v", err)
	}
	fields := r.FieldsOf("models.Post")
	want := []string{"title", "author", "comments", "draft"}
	got := fields.Names()
	if len(got) != len(want) {
		t.Fatalf("unexpected fields %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected fields %v", got)
		}
	}
	comments, _ := fields.Get("comments")
	if !comments.IsRelationship() || comments.Cardinality != CardinalityMany || comments.Related != "Comment" {
		t.Fatalf("unexpected comments descriptor %s", comments)
	}
	if len(fields.Attributes()) != 2 || len(fields.Relationships()) != 2 {
		t.Fatalf("unexpected split %d/%d", len(fields.Attributes()), len(fields.Relationships()))
	}

	type Broken struct {
		Owner any `record:"owner,belongsTo="`
	}
	if err := r.RegisterStruct("models.Broken", Broken{}); err == nil {
		t.Fatalf("expected error for relationship without type")
	}
	if err := r.RegisterStruct("models.Broken", 42); err == nil {
		t.Fatalf("expected error for non struct")
	}
}

func TestFieldsOfConcurrentReaders(t *testing.T) {
	r := NewFieldRegistry()
	_ = r.RegisterAll("models.Post", Attr("title", "string"), Attr("body", "string"))

	var wg sync.WaitGroup
	tables := make([]*Fields, 16)
	for i := range tables {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i] = r.FieldsOf("models.Post")
		}(i)
	}
	wg.Wait()
	for _, table := range tables {
		if table != tables[0] {
			t.Fatalf("expected every reader to see the same table")
		}
	}
}
