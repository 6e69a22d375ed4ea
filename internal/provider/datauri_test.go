package provider

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeDataURI(t *testing.T) {
	data := []byte("%PDF-1.4 hello")

	uri := EncodeDataURI("application/pdf", data)
	if want := "data:application/pdf;base64,JVBERi0xLjQgaGVsbG8="; uri != want {
		t.Fatalf("EncodeDataURI = %q, want %q", uri, want)
	}

	asset, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI: %v", err)
	}
	if asset.MediaType != "application/pdf" {
		t.Errorf("media type = %q", asset.MediaType)
	}
	if !bytes.Equal(asset.Data, data) {
		t.Errorf("data = %q, want %q", asset.Data, data)
	}
}

func TestEncodeDataURI_EmptyMediaType(t *testing.T) {
	uri := EncodeDataURI("", []byte{1, 2, 3})
	if uri != "data:application/octet-stream;base64,AQID" {
		t.Fatalf("unexpected uri %q", uri)
	}
}

func TestDecodeDataURI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no scheme", "image/png;base64,AAAA"},
		{"no comma", "data:image/png;base64"},
		{"not base64", "data:text/plain,hello"},
		{"bad payload", "data:image/png;base64,!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDataURI(tt.in)
			if !errors.Is(err, ErrInvalidDataURI) {
				t.Fatalf("expected ErrInvalidDataURI, got %v", err)
			}
		})
	}
}
