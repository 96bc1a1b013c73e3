package grpcserver

import (
	"context"
	"testing"
)

func TestWithSubject_And_SubjectFromCtx(t *testing.T) {
	t.Parallel()

	if _, ok := SubjectFromCtx(context.Background()); ok {
		t.Fatalf("empty context must not carry a subject")
	}
	if _, ok := SubjectFromCtx(WithSubject(context.Background(), "")); ok {
		t.Fatalf("empty subject must not count")
	}
	sub, ok := SubjectFromCtx(WithSubject(context.Background(), "alice"))
	if !ok || sub != "alice" {
		t.Fatalf("got %q %v", sub, ok)
	}
}
