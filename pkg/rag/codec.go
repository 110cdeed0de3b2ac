package rag

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrCorruptBlob is returned when a stored blob cannot be decoded.
var ErrCorruptBlob = errors.New("corrupt stored blob")

// Codec packs text for storage and unpacks it on read. Pack and Unpack must
// round-trip losslessly for every input, including the empty string.
type Codec interface {
	Pack(text string) (string, error)
	Unpack(blob string) (string, error)
}

// GzipBase64Codec stores text gzip-compressed and base64-encoded. The empty
// string is stored as the empty blob.
type GzipBase64Codec struct{}

func (GzipBase64Codec) Pack(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		return "", fmt.Errorf("compressing blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compressing blob: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (GzipBase64Codec) Unpack(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	defer zr.Close()
	text, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	return string(text), nil
}
