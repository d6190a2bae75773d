package jsonutil

import (
	"errors"
	"testing"
)

func TestUnfence(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `  {"a":1} `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```\n", `[1,2]`},
		{"unclosed fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"single line", "```", "```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unfence(tt.in); got != tt.want {
				t.Errorf("Unfence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"object in prose", `Sure! {"caption":"hi"} Hope that helps {}`, `{"caption":"hi"}`},
		{"array first", `[{"a":1}] then {"b":2}`, `[{"a":1}]`},
		{"braces in string", `{"caption":"smile :} {"}`, `{"caption":"smile :} {"}`},
		{"escaped quote", `{"caption":"say \"}\" now"}`, `{"caption":"say \"}\" now"}`},
		{"nested", `x {"a":{"b":[1,{"c":2}]}} y`, `{"a":{"b":[1,{"c":2}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.in)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractErrors(t *testing.T) {
	if _, err := Extract("no json here"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Extract() error = %v, want ErrNoJSON", err)
	}
	if _, err := Extract(`{"a": [1, 2}`); err == nil {
		t.Error("Extract() expected error for unterminated document")
	}
}

func TestDecode(t *testing.T) {
	type reply struct {
		Caption *string `json:"caption"`
	}

	got, err := Decode[reply]("```json\n{\"caption\": \"Golden hour 🌅\"}\n```")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Caption == nil || *got.Caption != "Golden hour 🌅" {
		t.Errorf("Decode() caption = %v", got.Caption)
	}

	got, err = Decode[reply](`{"caption": null}`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Caption != nil {
		t.Errorf("Decode() caption = %q, want nil", *got.Caption)
	}

	if _, err := Decode[reply](`{"caption": 5}`); err == nil {
		t.Error("Decode() expected type error")
	}
	if _, err := Decode[reply]("nothing"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Decode() error = %v, want ErrNoJSON", err)
	}
}
