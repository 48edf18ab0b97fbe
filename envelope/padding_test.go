package envelope

import (
	"bytes"
	"testing"
)

func TestPadUnpadPayload_RoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("short"),
		bytes.Repeat([]byte("a"), 300),
		bytes.Repeat([]byte("b"), 1100),
		bytes.Repeat([]byte("c"), 4000),
	}

	for _, payload := range cases {
		padded, err := PadPayload(payload)
		if err != nil {
			t.Fatalf("PadPayload(len=%d) failed: %v", len(payload), err)
		}

		unpadded, err := UnpadPayload(padded)
		if err != nil {
			t.Fatalf("UnpadPayload() failed: %v", err)
		}
		if !bytes.Equal(unpadded, payload) {
			t.Errorf("round-trip mismatch for len=%d", len(payload))
		}
	}
}

func TestPadPayload_Buckets(t *testing.T) {
	small, _ := PadPayload(make([]byte, 10))
	if len(small) != PadSmall {
		t.Errorf("small payload padded to %d, want %d", len(small), PadSmall)
	}

	medium, _ := PadPayload(make([]byte, 300))
	if len(medium) != PadMedium {
		t.Errorf("medium payload padded to %d, want %d", len(medium), PadMedium)
	}

	large, _ := PadPayload(make([]byte, 1100))
	if len(large) != PadLarge {
		t.Errorf("large payload padded to %d, want %d", len(large), PadLarge)
	}
}

func TestPadPayload_TooLarge(t *testing.T) {
	if _, err := PadPayload(make([]byte, PadLarge)); err != ErrPayloadTooLarge {
		t.Errorf("PadPayload() = %v, want %v", err, ErrPayloadTooLarge)
	}
}

func TestUnpadPayload_RejectsShortInput(t *testing.T) {
	if _, err := UnpadPayload([]byte{1, 2}); err != ErrInvalidPadding {
		t.Errorf("UnpadPayload() = %v, want %v", err, ErrInvalidPadding)
	}
}

func TestUnpadPayload_RejectsBadLengthPrefix(t *testing.T) {
	bad := make([]byte, PadSmall)
	bad[0], bad[1], bad[2], bad[3] = 0xFF, 0xFF, 0xFF, 0xFF
	if _, err := UnpadPayload(bad); err != ErrInvalidPadding {
		t.Errorf("UnpadPayload() = %v, want %v", err, ErrInvalidPadding)
	}
}
