package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

// TestNewRecord tests record construction.
func TestNewRecord(t *testing.T) {
	t.Parallel()

	r := NewRecord("https://www.i-machine.net/products/x")

	if r.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", r.Len())
	}
	if r.URL() != "https://www.i-machine.net/products/x" {
		t.Errorf("unexpected URL %q", r.URL())
	}
	if got := r.Keys(); !reflect.DeepEqual(got, []string{KeyURL}) {
		t.Errorf("expected keys [URL], got %v", got)
	}
}

// TestRecordSet tests insertion order and last-wins semantics.
func TestRecordSet(t *testing.T) {
	t.Parallel()

	t.Run("keeps insertion order", func(t *testing.T) {
		t.Parallel()

		r := NewRecord("u")
		r.Set(KeyModel, "M1")
		r.Set(KeyPrice, "100")
		r.Set("Weight", "12kg")

		want := []string{KeyURL, KeyModel, KeyPrice, "Weight"}
		if got := r.Keys(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("overwrite keeps position and replaces value", func(t *testing.T) {
		t.Parallel()

		r := NewRecord("u")
		r.Set("Weight", "12kg")
		r.Set("Color", "red")
		r.Set("Weight", "15kg")

		if r.Len() != 3 {
			t.Errorf("expected 3 keys, got %d", r.Len())
		}
		if v := r.Value("Weight"); v != "15kg" {
			t.Errorf("expected 15kg, got %q", v)
		}
		want := []string{KeyURL, "Weight", "Color"}
		if got := r.Keys(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("zero value record is usable", func(t *testing.T) {
		t.Parallel()

		var r Record
		r.Set("a", "b")
		if !r.Has("a") {
			t.Error("expected key a")
		}
	})

	t.Run("keys returns a copy", func(t *testing.T) {
		t.Parallel()

		r := NewRecord("u")
		keys := r.Keys()
		keys[0] = "changed"
		if r.Keys()[0] != KeyURL {
			t.Error("Keys must not expose internal slice")
		}
	})
}

// TestRecordGet tests lookups of present and absent keys.
func TestRecordGet(t *testing.T) {
	t.Parallel()

	r := NewRecord("u")
	r.Set(KeyModel, NotAvailable)

	if v, ok := r.Get(KeyModel); !ok || v != NotAvailable {
		t.Errorf("expected (N/A, true), got (%q, %v)", v, ok)
	}
	if _, ok := r.Get(KeySpecification); ok {
		t.Error("expected Specification to be absent")
	}
	if r.Value(KeySpecification) != "" {
		t.Error("expected empty value for absent key")
	}
}

// TestRecordJSON tests ordered JSON encoding and decoding.
func TestRecordJSON(t *testing.T) {
	t.Parallel()

	t.Run("marshals in insertion order", func(t *testing.T) {
		t.Parallel()

		r := NewRecord("u")
		r.Set("Zeta", "1")
		r.Set("Alpha", "2")

		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		want := `{"URL":"u","Zeta":"1","Alpha":"2"}`
		if string(data) != want {
			t.Errorf("expected %s, got %s", want, data)
		}
	})

	t.Run("unmarshal preserves order", func(t *testing.T) {
		t.Parallel()

		var r Record
		if err := json.Unmarshal([]byte(`{"URL":"u","Zeta":"1","Alpha":"2"}`), &r); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		want := []string{"URL", "Zeta", "Alpha"}
		if got := r.Keys(); !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
		if r.Value("Alpha") != "2" {
			t.Errorf("expected Alpha=2, got %q", r.Value("Alpha"))
		}
	})

	t.Run("rejects non-object", func(t *testing.T) {
		t.Parallel()

		var r Record
		err := json.Unmarshal([]byte(`["a"]`), &r)
		if !errors.Is(err, ErrInvalidRecordJSON) {
			t.Errorf("expected ErrInvalidRecordJSON, got %v", err)
		}
	})

	t.Run("rejects non-string values", func(t *testing.T) {
		t.Parallel()

		var r Record
		err := json.Unmarshal([]byte(`{"URL":1}`), &r)
		if !errors.Is(err, ErrInvalidRecordJSON) {
			t.Errorf("expected ErrInvalidRecordJSON, got %v", err)
		}
	})
}
