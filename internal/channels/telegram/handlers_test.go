package telegram

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/envelope"
)

func TestEnvelopeMedia_Empty(t *testing.T) {
	if got := envelopeMedia(nil); got != nil {
		t.Errorf("envelopeMedia(nil) = %v, want nil", got)
	}
	if got := envelopeMedia([]MediaInfo{}); got != nil {
		t.Errorf("envelopeMedia([]) = %v, want nil", got)
	}
}

func TestEnvelopeMedia_SkipsItemsWithoutFilePath(t *testing.T) {
	got := envelopeMedia([]MediaInfo{{Type: "image", FilePath: ""}})
	if len(got) != 0 {
		t.Errorf("expected items without FilePath to be skipped, got %v", got)
	}
}

func TestEnvelopeMedia_KindMapping(t *testing.T) {
	tests := []struct {
		mediaType string
		want      envelope.MediaKind
	}{
		{"image", envelope.MediaImage},
		{"video", envelope.MediaVideo},
		{"animation", envelope.MediaVideo},
		{"audio", envelope.MediaAudio},
		{"voice", envelope.MediaAudio},
		{"document", envelope.MediaDocument},
		{"sticker", envelope.MediaDocument}, // unknown type defaults to document
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			got := envelopeMedia([]MediaInfo{{Type: tt.mediaType, FilePath: "/tmp/file"}})
			if len(got) != 1 {
				t.Fatalf("expected 1 media item, got %d", len(got))
			}
			if got[0].Kind != tt.want {
				t.Errorf("kind for %q = %v, want %v", tt.mediaType, got[0].Kind, tt.want)
			}
		})
	}
}

func TestEnvelopeMedia_CarriesPathMIMEAndSize(t *testing.T) {
	got := envelopeMedia([]MediaInfo{{
		Type:        "document",
		FilePath:    "/tmp/report.pdf",
		ContentType: "application/pdf",
		FileSize:    1234,
	}})
	if len(got) != 1 {
		t.Fatalf("expected 1 media item, got %d", len(got))
	}
	m := got[0]
	if m.URL != "/tmp/report.pdf" {
		t.Errorf("URL = %q, want /tmp/report.pdf", m.URL)
	}
	if m.MIME != "application/pdf" {
		t.Errorf("MIME = %q, want application/pdf", m.MIME)
	}
	if m.SizeBytes != 1234 {
		t.Errorf("SizeBytes = %d, want 1234", m.SizeBytes)
	}
}

func TestEnvelopeMedia_MixedListPreservesOrderAndSkipsEmpty(t *testing.T) {
	got := envelopeMedia([]MediaInfo{
		{Type: "image", FilePath: "/tmp/a.jpg"},
		{Type: "video", FilePath: ""},
		{Type: "document", FilePath: "/tmp/c.pdf"},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 media items after skipping empty path, got %d", len(got))
	}
	if got[0].URL != "/tmp/a.jpg" || got[1].URL != "/tmp/c.pdf" {
		t.Errorf("unexpected order/content: %v", got)
	}
}
