package records

import (
	"context"
	"fmt"
	"testing"
)

type stubAdapter struct {
	saveErr   error
	deleteErr error
	calls     []string
	keys      []any
	params    []Params
	saveHook  func(*Record) error
}

func (a *stubAdapter) SaveRecord(_ context.Context, r *Record) error {
	a.calls = append(a.calls, "save")
	if r.Key() == nil {
		if err := r.SetKey(fmt.Sprintf("k%d", len(a.calls))); err != nil {
			return err
		}
	}
	if a.saveHook != nil {
		if err := a.saveHook(r); err != nil {
			return err
		}
	}
	return a.saveErr
}

func (a *stubAdapter) DeleteRecord(_ context.Context, r *Record) error {
	a.calls = append(a.calls, "delete")
	return a.deleteErr
}

func (a *stubAdapter) FindAll(_ context.Context, t *RecordType) (*Collection, error) {
	a.calls = append(a.calls, "find_all")
	return NewCollection(t)
}

func (a *stubAdapter) FindQuery(_ context.Context, t *RecordType, params Params) (*Collection, error) {
	a.calls = append(a.calls, "find_query")
	a.params = append(a.params, params)
	return NewCollection(t)
}

func (a *stubAdapter) FindByKey(_ context.Context, t *RecordType, key any, params Params) (*Record, error) {
	a.calls = append(a.calls, "find_by_key")
	a.keys = append(a.keys, key)
	a.params = append(a.params, params)
	return t.Reference(key)
}

// stubSerializer treats the payload as a single value written to every
// string attribute.
type stubSerializer struct{}

func (stubSerializer) Serialize(r *Record) ([]byte, error) {
	name, _ := r.Raw("name").(string)
	return []byte(name), nil
}

func (stubSerializer) Deserialize(r *Record, data []byte) (*Record, error) {
	var err error
	r.Fields().Each(func(d FieldDescriptor) bool {
		if d.Transform == "string" {
			err = r.Set(d.Name, string(data))
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return r, r.Set("id", string(data))
}

func (stubSerializer) DeserializeMany(c *Collection, data []byte) (*Collection, error) {
	for _, part := range []string{string(data) + "-1", string(data) + "-2"} {
		rec, err := c.Type().Load([]byte(part))
		if err != nil {
			return nil, err
		}
		if err := c.Add(rec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type fixture struct {
	client  *Client
	adapter *stubAdapter
	user    *RecordType
	post    *RecordType
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	adapter := &stubAdapter{}
	opts = append([]Option{WithAdapter(adapter), WithSerializer(stubSerializer{})}, opts...)
	client, err := NewClient(opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	user, err := client.Define("models.User", []FieldDescriptor{
		Attr("name", "string"),
		Attr("nick", "string"),
		Attr("age", "integer"),
		BelongsTo("manager", "models.User"),
		HasMany("posts", "models.Post"),
	})
	if err != nil {
		t.Fatalf("define user: %v", err)
	}
	post, err := client.Define("models.Post", []FieldDescriptor{
		Attr("title", "string"),
		Attr("meta", "json"),
		BelongsTo("author", "models.User"),
	})
	if err != nil {
		t.Fatalf("define post: %v", err)
	}
	return fixture{client: client, adapter: adapter, user: user, post: post}
}

func mustLoad(t *testing.T, rt *RecordType, values map[string]any) *Record {
	t.Helper()
	rec, err := rt.LoadWith(func(r *Record) error {
		for name, value := range values {
			if err := r.Set(name, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("load %s: %v", rt.Name(), err)
	}
	return rec
}

func mustSet(t *testing.T, r *Record, name string, value any) {
	t.Helper()
	if err := r.Set(name, value); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
}
