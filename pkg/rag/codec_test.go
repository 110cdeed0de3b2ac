package rag

import (
	"errors"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := GzipBase64Codec{}

	cases := []string{
		"",
		"hello",
		"def execute():\n    return []\n",
		strings.Repeat("a very repetitive service file\n", 500),
		"unicode: déjà vu — ✓",
	}

	for _, text := range cases {
		blob, err := codec.Pack(text)
		if err != nil {
			t.Fatalf("Pack(%q) failed: %v", text, err)
		}
		got, err := codec.Unpack(blob)
		if err != nil {
			t.Fatalf("Unpack failed: %v", err)
		}
		if got != text {
			t.Errorf("round trip mismatch: got %q want %q", got, text)
		}
	}
}

func TestCodecEmptyBlobSentinel(t *testing.T) {
	codec := GzipBase64Codec{}
	blob, err := codec.Pack("")
	if err != nil {
		t.Fatalf("Pack empty failed: %v", err)
	}
	if blob != "" {
		t.Errorf("expected empty blob sentinel, got %q", blob)
	}
}

func TestCodecCorruptBlob(t *testing.T) {
	codec := GzipBase64Codec{}

	for _, blob := range []string{"not base64 !!!", "aGVsbG8="} {
		_, err := codec.Unpack(blob)
		if err == nil {
			t.Fatalf("expected error for corrupt blob %q", blob)
		}
		if !errors.Is(err, ErrCorruptBlob) {
			t.Errorf("expected ErrCorruptBlob, got %v", err)
		}
	}
}

func TestCodecCompresses(t *testing.T) {
	codec := GzipBase64Codec{}
	text := strings.Repeat("the same line over and over\n", 200)
	blob, err := codec.Pack(text)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if len(blob) >= len(text) {
		t.Errorf("expected compressed blob to be smaller: blob %d, text %d", len(blob), len(text))
	}
}
