package safe

import (
	"errors"
	"testing"

	"PPAdmin/tools/errs"
)

func TestRecover(t *testing.T) {
	err := Recover("boom", func() { panic("x") })
	if !errors.Is(err, errs.ErrInternalServer) {
		t.Fatalf("want internal error, got %v", err)
	}
	if err := Recover("fine", func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMustNotNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil pointer")
		}
	}()
	var p *int
	MustNotNil(p, "p")
}
