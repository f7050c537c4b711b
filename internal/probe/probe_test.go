package probe

import (
	"errors"
	"testing"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry("ua")
	for _, p := range []domain.Protocol{domain.ProtocolHTTP, domain.ProtocolDNS} {
		if _, err := reg.Lookup(p); err != nil {
			t.Fatalf("lookup %s: %v", p, err)
		}
	}
	if _, err := reg.Lookup("GOPHER"); !errors.Is(err, ErrUnknownProtocol) {
		t.Fatalf("want ErrUnknownProtocol, got %v", err)
	}
}

func TestKind_String(t *testing.T) {
	if KindUp.String() != "up" || KindDown.String() != "down" || KindTimeout.String() != "timeout" || Kind(0).String() != "invalid" {
		t.Fatalf("unexpected kind names")
	}
}
