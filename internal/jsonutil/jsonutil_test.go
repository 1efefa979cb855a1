package jsonutil

import (
	"errors"
	"testing"
)

func TestUnmarshalDirect(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	if err := Unmarshal([]byte(`{"a": 3}`), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.A != 3 {
		t.Fatalf("a = %d, want 3", out.A)
	}
}

func TestUnmarshalFromProse(t *testing.T) {
	raw := "Sure, here is the analysis:\n```json\n{\"threats\":[],\"summary\":\"ok\"}\n```"
	var out struct {
		Summary string `json:"summary"`
	}
	if err := Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.Summary != "ok" {
		t.Fatalf("summary = %q, want %q", out.Summary, "ok")
	}
}

func TestExtractObjectBraceInString(t *testing.T) {
	got, err := ExtractObject(`noise {"msg": "has { and } inside", "n": 1} trailing`)
	if err != nil {
		t.Fatalf("ExtractObject() error = %v", err)
	}
	want := `{"msg": "has { and } inside", "n": 1}`
	if got != want {
		t.Fatalf("ExtractObject() = %q, want %q", got, want)
	}
}

func TestExtractObjectEscapedQuote(t *testing.T) {
	got, err := ExtractObject(`{"msg": "quote \" then {", "n": 2}`)
	if err != nil {
		t.Fatalf("ExtractObject() error = %v", err)
	}
	if got != `{"msg": "quote \" then {", "n": 2}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}

func TestExtractObjectNone(t *testing.T) {
	if _, err := ExtractObject("no json here at all"); !errors.Is(err, ErrNoObject) {
		t.Fatalf("error = %v, want ErrNoObject", err)
	}
}

func TestExtractObjectUnbalanced(t *testing.T) {
	if _, err := ExtractObject(`{"a": 1`); !errors.Is(err, ErrNoObject) {
		t.Fatalf("error = %v, want ErrNoObject", err)
	}
}
