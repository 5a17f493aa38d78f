package fault

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", base, KindUnknown},
		{"not found", NotFound("read issue", base), KindNotFound},
		{"parse", Parse("load terminology", base), KindParse},
		{"transient", Transient("list comments", base), KindTransient},
		{"invalid", Invalid("budget", base), KindInvalid},
		{"wrapped", fmt.Errorf("respond: %w", Transient("update issue", base)), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_UnwrapsToCause(t *testing.T) {
	err := NotFound("open knowledge", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("error does not unwrap to fs.ErrNotExist")
	}
	if !IsNotFound(err) || IsParse(err) {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if got := err.Error(); got != "open knowledge: file does not exist" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestError_NilCause(t *testing.T) {
	err := New(KindTransient, "github", nil)
	if got := err.Error(); got != "github: transient" {
		t.Fatalf("Error() = %q", got)
	}
	if !IsTransient(err) {
		t.Fatal("IsTransient = false")
	}
	if errors.Unwrap(err) != nil {
		t.Fatalf("Unwrap = %v, want nil", errors.Unwrap(err))
	}
}
