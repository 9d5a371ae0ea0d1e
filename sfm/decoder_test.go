package sfm

import (
	"bytes"
	"compress/zlib"
	"testing"
)

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeScenePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr bool
	}{
		{"raw JSON", []byte(sampleSceneJSON), false},
		{"leading whitespace", []byte("\n  " + sampleSceneJSON), false},
		{"zlib JSON", compress(t, []byte(sampleSceneJSON)), false},
		{"empty", nil, true},
		{"garbage", []byte{0x01, 0x02, 0x03}, true},
		{"zlib of nothing", compress(t, nil), true},
		{"zlib of bad JSON", compress(t, []byte("{not json")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeScenePayload(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got scene %v", s)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeScenePayload: %v", err)
			}
			if s.ID != "courtyard" || len(s.Landmarks) != 1 {
				t.Errorf("decoded scene = %q with %d landmarks", s.ID, len(s.Landmarks))
			}
		})
	}
}

func TestEncodeScenePayload(t *testing.T) {
	s, err := ParseSceneJSON([]byte(sampleSceneJSON))
	if err != nil {
		t.Fatal(err)
	}
	payload, err := EncodeScenePayload(s)
	if err != nil {
		t.Fatalf("EncodeScenePayload: %v", err)
	}
	if payload[0] == '{' {
		t.Fatal("payload should be compressed")
	}
	back, err := DecodeScenePayload(payload)
	if err != nil {
		t.Fatalf("DecodeScenePayload: %v", err)
	}
	if back.CameraCount() != 2 || len(back.Cameras) != 3 {
		t.Errorf("cameras = %d present of %d, want 2 of 3", back.CameraCount(), len(back.Cameras))
	}
}
