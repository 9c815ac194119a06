package keysafe

import (
	"bytes"
	"testing"
)

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: "json"},
		{name: "json", want: "json"},
		{name: "yaml", want: "yaml"},
		{name: "yml", want: "yaml"},
		{name: "cbor", want: "cbor"},
		{name: "xml", wantErr: true},
	}

	for _, tt := range tests {
		codec, err := CodecByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("CodecByName(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("CodecByName(%q): %v", tt.name, err)
		}
		if codec.Name() != tt.want {
			t.Fatalf("CodecByName(%q) = %s, want %s", tt.name, codec.Name(), tt.want)
		}
	}
}

func TestJSONCodec_RejectsUnknownFields(t *testing.T) {
	var p profile
	err := JSONCodec{}.Unmarshal([]byte(`{"name":"a","role":"admin"}`), &p)
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestJSONCodec_RejectsTrailingData(t *testing.T) {
	var n int
	if err := (JSONCodec{}).Unmarshal([]byte(`1 2`), &n); err == nil {
		t.Fatal("expected trailing data to be rejected")
	}
}

func TestYAMLCodec_RejectsUnknownFields(t *testing.T) {
	var p profile
	err := YAMLCodec{}.Unmarshal([]byte("name: a\nrole: admin\n"), &p)
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestCBORCodec(t *testing.T) {
	codec, err := NewCBORCodec()
	if err != nil {
		t.Fatalf("NewCBORCodec: %v", err)
	}

	t.Run("canonical", func(t *testing.T) {
		a, err := codec.Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		b, err := codec.Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Fatal("expected identical encodings for equal maps")
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		data, err := codec.Marshal(map[string]string{"name": "a", "role": "admin"})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var p profile
		if err := codec.Unmarshal(data, &p); err == nil {
			t.Fatal("expected unknown field to be rejected")
		}
	})

	t.Run("any decodes string maps", func(t *testing.T) {
		data, err := codec.Marshal(map[string]any{"n": 1})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var v any
		if err := codec.Unmarshal(data, &v); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if _, ok := v.(map[string]any); !ok {
			t.Fatalf("expected map[string]any, got %T", v)
		}
	})
}
