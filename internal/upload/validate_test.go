package upload

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"earmark/internal/services"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"song.mp3", "song.mp3"},
		{"../../etc/passwd.mp3", "passwd.mp3"},
		{`C:\Users\me\voice memo.wav`, "voice memo.wav"},
		{"café.m4a", "cafe.m4a"},
		{"rm -rf;$(x).mp3", "rm -rf___x_.mp3"},
		{"-flag.mp3", "_flag.mp3"},
		{".hidden.wav", "_hidden.wav"},
		{"nul\x00byte.mp3", "nulbyte.mp3"},
		{"..", ""},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFileNameCapsLength(t *testing.T) {
	long := strings.Repeat("é", 300) + ".mp3"
	got := SanitizeFileName(long)
	if len(got) > 255 {
		t.Fatalf("length = %d, want <= 255", len(got))
	}
}

func TestSniffFormat(t *testing.T) {
	tests := map[string][]byte{
		"mp3": append([]byte("ID3"), 0x04, 0x00),
		"wav": []byte("RIFF\x00\x00\x00\x00WAVE"),
		"m4a": []byte("\x00\x00\x00\x20ftypM4A "),
	}
	for want, data := range tests {
		got, ok := SniffFormat(data)
		if !ok || got != want {
			t.Errorf("SniffFormat(%q) = %q,%v want %q", data, got, ok, want)
		}
	}
	if got, ok := SniffFormat([]byte{0xff, 0xfb, 0x90}); !ok || got != "mp3" {
		t.Errorf("frame sync not detected: %q %v", got, ok)
	}
	if _, ok := SniffFormat([]byte("%PDF-1.7")); ok {
		t.Error("pdf should not be accepted")
	}
}

func TestValidate(t *testing.T) {
	mp3 := append([]byte("ID3"), bytes.Repeat([]byte{0}, 16)...)

	ok, err := Validate(File{Name: "dir/clip.MP3", Data: mp3})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok.Name != "clip.MP3" || ok.MIMEType != "audio/mpeg" {
		t.Fatalf("unexpected file %+v", ok)
	}

	failures := map[string]File{
		"extension":  {Name: "clip.ogg", Data: mp3},
		"mime":       {Name: "clip.mp3", MIMEType: "video/mp4", Data: mp3},
		"empty":      {Name: "clip.mp3"},
		"magic":      {Name: "clip.mp3", Data: []byte("not audio at all")},
		"size":       {Name: "clip.mp3", Data: append(mp3, make([]byte, MaxFileSize)...)},
		"empty name": {Name: "/", Data: mp3},
	}
	for name, file := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(file)
			if !errors.Is(err, services.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
