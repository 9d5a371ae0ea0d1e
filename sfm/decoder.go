package sfm

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// maxInflatedBytes caps decompressed payloads at 256 MB
const maxInflatedBytes = 256 << 20

// DecodeScenePayload decodes a scene from an MQTT payload:
// - Raw JSON
// - Zlib-compressed JSON
func DecodeScenePayload(data []byte) (*Scene, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		jsonBytes = trimmed
	} else {
		var err error
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON or zlib-compressed: %w", err)
		}
	}

	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}
	return ParseSceneJSON(jsonBytes)
}

// EncodeScenePayload marshals a scene and zlib-compresses it
func EncodeScenePayload(s *Scene) ([]byte, error) {
	data, err := MarshalScene(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compressing scene: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing scene: %w", err)
	}
	return buf.Bytes(), nil
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(io.LimitReader(reader, maxInflatedBytes))
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}

	return decompressed, nil
}
