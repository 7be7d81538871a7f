package routes

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/atrilabs/atri-runtime/pkg/state"
)

func TestRegisterResolve(t *testing.T) {
	r := NewRegistry()
	called := false
	onInit := func(ctx context.Context, h *state.Handle) error {
		called = true
		return nil
	}
	if err := r.Register("/counter/", onInit, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rt, err := r.Resolve("counter")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.Path != "/counter" {
		t.Errorf("Path = %q, want /counter", rt.Path)
	}
	if err := rt.Init(context.Background(), state.NewHandle(nil, nil)); err != nil || !called {
		t.Errorf("Init() = %v, called = %v", err, called)
	}
	if rt.Event == nil {
		t.Error("nil Event hook should be replaced by Noop")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("/a", nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register("/a/", nil, nil)
	var dup *DuplicateRouteError
	if !errors.As(err, &dup) {
		t.Fatalf("Register twice error = %v, want *DuplicateRouteError", err)
	}
	if dup.Path != "/a" {
		t.Errorf("Path = %q, want /a", dup.Path)
	}
}

func TestRegisterInvalidPath(t *testing.T) {
	err := NewRegistry().Register("/../x", nil, nil)
	var pe *PathError
	if !errors.As(err, &pe) || !errors.Is(err, ErrPathEscapesRoot) {
		t.Fatalf("Register error = %v, want *PathError wrapping ErrPathEscapesRoot", err)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()
	for _, p := range []string{"/missing", `/bad\path`} {
		_, err := r.Resolve(p)
		var unknown *UnknownRouteError
		if !errors.As(err, &unknown) {
			t.Errorf("Resolve(%q) error = %v, want *UnknownRouteError", p, err)
		}
	}
}

func TestRegisterCopiesDefaults(t *testing.T) {
	r := NewRegistry()
	defaults := state.Map{"count": state.Int(0)}
	if err := r.RegisterRoute(Route{Path: "/", Defaults: defaults}); err != nil {
		t.Fatalf("RegisterRoute: %v", err)
	}
	defaults["count"] = state.Int(99)

	rt, _ := r.Resolve("/")
	if got := rt.Defaults["count"]; !got.Equal(state.Int(0)) {
		t.Errorf("Defaults[count] = %v, want 0", got)
	}
}

func TestReplaceAtomic(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("/old", nil, nil); err != nil {
		t.Fatal(err)
	}
	held, _ := r.Resolve("/old")
	v := r.Version()

	if err := r.Replace([]Route{{Path: "/new"}, {Path: "/other"}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := r.Paths(); len(got) != 2 || got[0] != "/new" || got[1] != "/other" {
		t.Errorf("Paths() = %v, want [/new /other]", got)
	}
	if _, err := r.Resolve("/old"); err == nil {
		t.Error("/old should be gone after Replace")
	}
	if held.Path != "/old" || held.Event == nil {
		t.Error("previously resolved route must stay usable")
	}
	if r.Version() <= v {
		t.Errorf("Version() = %d, want > %d", r.Version(), v)
	}
}

func TestReplaceFailureKeepsCurrent(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("/keep", nil, nil); err != nil {
		t.Fatal(err)
	}
	v := r.Version()

	err := r.Replace([]Route{{Path: "/x"}, {Path: "/x/"}})
	var dup *DuplicateRouteError
	if !errors.As(err, &dup) {
		t.Fatalf("Replace error = %v, want *DuplicateRouteError", err)
	}
	if _, err := r.Resolve("/keep"); err != nil {
		t.Errorf("Resolve(/keep) after failed Replace: %v", err)
	}
	if r.Len() != 1 || r.Version() != v {
		t.Errorf("Len() = %d, Version() = %d; registry should be unchanged", r.Len(), r.Version())
	}
}

func TestRegistryConcurrentResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("/", nil, nil); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i == 0 {
					_ = r.Replace([]Route{{Path: "/"}})
					continue
				}
				if _, err := r.Resolve("/"); err != nil {
					t.Errorf("Resolve: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
