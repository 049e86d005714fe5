package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", New(Conflict, "duplicate"), Conflict},
		{"wrapped", fmt.Errorf("respond: %w", New(Expired, "window passed")), Expired},
		{"untyped", errors.New("boom"), Internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := New(NotFound, "room %d not found", 7)
	if !IsKind(err, NotFound) {
		t.Fatal("expected NotFound kind")
	}
	if IsKind(err, Conflict) {
		t.Fatal("unexpected Conflict kind")
	}
	if err.Error() != "room 7 not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
