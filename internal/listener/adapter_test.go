package listener

import (
	"context"
	"reflect"
	"testing"

	"github.com/pitabwire/uibind/model"
)

type recordingDispatcher struct {
	calls []string
	args  [][]any
}

func (d *recordingDispatcher) Dispatch(_ context.Context, name string, args ...any) (any, error) {
	d.calls = append(d.calls, name)
	d.args = append(d.args, args)
	return "dispatched:" + name, nil
}

func TestPropName(t *testing.T) {
	a := New()

	tests := map[string]string{
		"click":     "onClick",
		"change":    "onChange",
		"load":      "onLoad",
		"afterLoad": "onAfterLoad",
		"blur":      "blur",
		"onSelect":  "onSelect",
	}
	for event, want := range tests {
		if got := a.PropName(event); got != want {
			t.Errorf("PropName(%q) = %q, want %q", event, got, want)
		}
	}
}

func TestWithMapping_extendsAndOverrides(t *testing.T) {
	a := New(WithMapping(map[string]string{"blur": "onBlur", "click": "onPress"}))

	for event, want := range map[string]string{"blur": "onBlur", "click": "onPress", "change": "onChange"} {
		if got := a.PropName(event); got != want {
			t.Errorf("PropName(%q) = %q, want %q", event, got, want)
		}
	}
	if got := New().PropName("click"); got != "onClick" {
		t.Errorf("default adapter PropName(click) = %q, want onClick", got)
	}
}

func TestApply_movesListenersIntoProps(t *testing.T) {
	called := false
	fn := model.Handler(func(context.Context, ...any) (any, error) {
		called = true
		return nil, nil
	})
	desc := model.NodeDescriptor{
		Type:      "button",
		Props:     map[string]any{"text": "Save", "onClick": "stale"},
		Listeners: map[string]model.Listener{"click": {Fn: fn}, "hover": {Fn: fn}},
	}

	out := New().Apply(desc)

	if out.Listeners != nil {
		t.Errorf("Listeners = %v, want nil", out.Listeners)
	}
	if out.Props["text"] != "Save" {
		t.Errorf("text = %v, want Save", out.Props["text"])
	}
	h, ok := out.Props["onClick"].(model.Handler)
	if !ok {
		t.Fatalf("onClick = %T, want model.Handler", out.Props["onClick"])
	}
	_, _ = h(context.Background())
	if !called {
		t.Error("onClick did not call the listener")
	}
	if _, ok := out.Props["hover"]; !ok {
		t.Error("unmapped event should keep its name as the prop")
	}

	// The input descriptor is not modified.
	if desc.Props["onClick"] != "stale" || len(desc.Listeners) != 2 {
		t.Errorf("input descriptor modified: %+v", desc)
	}
}

func TestApply_bindsActionNamesToDispatcher(t *testing.T) {
	d := &recordingDispatcher{}
	a := New(WithDispatcher(d))

	out := a.Apply(model.NodeDescriptor{
		Type:      "button",
		Listeners: map[string]model.Listener{"click": {Action: "saveUser"}},
	})

	h := out.Props["onClick"].(model.Handler)
	got, err := h(context.Background(), "arg")
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got != "dispatched:saveUser" {
		t.Errorf("result = %v, want dispatched:saveUser", got)
	}
	if !reflect.DeepEqual(d.calls, []string{"saveUser"}) || !reflect.DeepEqual(d.args, [][]any{{"arg"}}) {
		t.Errorf("dispatched %v with %v", d.calls, d.args)
	}
}

func TestApply_functionWinsOverAction(t *testing.T) {
	d := &recordingDispatcher{}
	fn := model.Handler(func(context.Context, ...any) (any, error) { return "fn", nil })

	out := New(WithDispatcher(d)).Apply(model.NodeDescriptor{
		Listeners: map[string]model.Listener{"click": {Action: "saveUser", Fn: fn}},
	})

	got, _ := out.Props["onClick"].(model.Handler)(context.Background())
	if got != "fn" {
		t.Errorf("result = %v, want fn", got)
	}
	if len(d.calls) != 0 {
		t.Errorf("dispatcher called: %v", d.calls)
	}
}

func TestApply_unboundActionIsDropped(t *testing.T) {
	out := New().Apply(model.NodeDescriptor{
		Props:     map[string]any{"text": "Go"},
		Listeners: map[string]model.Listener{"click": {Action: "go"}},
	})
	if want := map[string]any{"text": "Go"}; !reflect.DeepEqual(out.Props, want) {
		t.Errorf("Props = %v, want %v", out.Props, want)
	}
}

func TestApply_noListenersReturnsDescriptor(t *testing.T) {
	desc := model.NodeDescriptor{Type: "input", Props: map[string]any{"name": "email"}}
	if got := New().Apply(desc); !reflect.DeepEqual(got, desc) {
		t.Errorf("Apply() = %+v, want %+v", got, desc)
	}
}
