package model

import (
	"context"
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNodeDescriptor_yamlListeners(t *testing.T) {
	src := `
type: panel
props:
  title: Users
listeners:
  click: openUser
items:
  - type: input
    props:
      name: email
`
	var d NodeDescriptor
	if err := yaml.Unmarshal([]byte(src), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Listeners["click"].Action != "openUser" {
		t.Errorf("click listener = %+v, want action openUser", d.Listeners["click"])
	}
	if len(d.Nodes()) != 1 || d.Nodes()[0].Type != "input" {
		t.Errorf("Nodes() = %+v", d.Nodes())
	}
	if d.StringProp("title") != "Users" {
		t.Errorf("title = %q", d.StringProp("title"))
	}
}

func TestNodeDescriptor_Nodes_childrenThenItems(t *testing.T) {
	d := NodeDescriptor{
		Children: []NodeDescriptor{{Type: "a"}},
		Items:    []NodeDescriptor{{Type: "b"}},
	}
	got := d.Nodes()
	if len(got) != 2 || got[0].Type != "a" || got[1].Type != "b" {
		t.Errorf("Nodes() = %+v", got)
	}
}

func TestComponent_MarshalJSON_dropsCallbacks(t *testing.T) {
	h := Handler(func(ctx context.Context, args ...any) (any, error) { return nil, nil })
	c := Component{
		Type: "button",
		Props: map[string]any{
			"text":    "Save",
			"onClick": h,
			"nested":  map[string]any{"fn": h, "keep": 1},
		},
	}
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Type   string         `json:"type"`
		Props  map[string]any `json:"props"`
		Events []string       `json:"events"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := out.Props["onClick"]; ok {
		t.Error("onClick should not be serialized")
	}
	nested, _ := out.Props["nested"].(map[string]any)
	if _, ok := nested["fn"]; ok {
		t.Error("nested callback should not be serialized")
	}
	if nested["keep"] != float64(1) {
		t.Errorf("nested.keep = %v", nested["keep"])
	}
	if len(out.Events) != 1 || out.Events[0] != "onClick" {
		t.Errorf("events = %v, want [onClick]", out.Events)
	}
}

func TestComponent_Callback(t *testing.T) {
	called := false
	c := Component{Props: map[string]any{
		"onClick": Handler(func(ctx context.Context, args ...any) (any, error) {
			called = true
			return nil, nil
		}),
	}}
	h, ok := c.Callback("onClick")
	if !ok {
		t.Fatal("Callback(onClick) not found")
	}
	_, _ = h(context.Background())
	if !called {
		t.Error("handler was not invoked")
	}
	if _, ok := c.Callback("onChange"); ok {
		t.Error("Callback(onChange) should be absent")
	}
}
