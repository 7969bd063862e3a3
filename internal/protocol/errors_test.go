package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		"",
		ErrProtoBadRequest,
		ErrInvalidGeometry,
		ErrNotFound,
		ErrUnreachable,
		ErrInvalidEndpoint,
		ErrBadRequest,
		ErrRateLimit,
		ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Fatalf("expected %q to be known", code)
		}
	}
	if IsKnownCode("E_NOPE") {
		t.Fatalf("unexpected known code")
	}
}
