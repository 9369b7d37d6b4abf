package shortener

import (
	"strings"
	"testing"
)

func TestGenerateSecureSlug_InvalidLength(t *testing.T) {
	t.Parallel()

	if _, err := GenerateSecureSlug(0); err == nil {
		t.Fatalf("expected error for invalid length")
	}
}

func TestGenerateSecureSlug_LengthAndAlphabet(t *testing.T) {
	t.Parallel()

	slug, err := GenerateSecureSlug(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slug) != 10 {
		t.Fatalf("expected slug length 10, got %d", len(slug))
	}

	for i := 0; i < len(slug); i++ {
		if strings.IndexByte(alphabet, slug[i]) == -1 {
			t.Fatalf("slug contains invalid character %q", slug[i])
		}
	}
}

func TestGenerateSecureSlug_UniqueWithinSmallBatch(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		slug, err := GenerateSecureSlug(10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, exists := seen[slug]; exists {
			t.Fatalf("duplicate slug generated in small batch: %s", slug)
		}
		seen[slug] = struct{}{}
	}
}

func TestEncodeDecodeIDRoundtrip(t *testing.T) {
	t.Parallel()

	for _, id := range []uint{0, 1, 61, 62, 3843, 123456789} {
		encoded := EncodeID(id)
		if decoded := DecodeID(encoded); decoded != id {
			t.Fatalf("roundtrip failed for %d: encoded %q decoded %d", id, encoded, decoded)
		}
	}
}

func TestDecodeIDSkipsInvalidCharacters(t *testing.T) {
	t.Parallel()

	if got, want := DecodeID("1-0"), DecodeID("10"); got != want {
		t.Fatalf("expected invalid characters to be skipped, got %d want %d", got, want)
	}
}
