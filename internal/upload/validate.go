package upload

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"earmark/internal/services"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 40 << 20

const maxNameBytes = 255

var allowedExtensions = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".m4a": "audio/mp4",
}

var allowedMIMETypes = map[string]struct{}{
	"audio/mpeg":  {},
	"audio/mp3":   {},
	"audio/wav":   {},
	"audio/x-wav": {},
	"audio/mp4":   {},
	"audio/x-m4a": {},
}

type signature struct {
	offset int
	magic  []byte
	format string
}

var signatures = []signature{
	{offset: 0, magic: []byte("ID3"), format: "mp3"},
	{offset: 0, magic: []byte("RIFF"), format: "wav"},
	{offset: 0, magic: []byte{0xff, 0xfb}, format: "mp3"},
	{offset: 0, magic: []byte{0xff, 0xf3}, format: "mp3"},
	{offset: 0, magic: []byte{0xff, 0xf2}, format: "mp3"},
	{offset: 0, magic: []byte{0xff, 0xe3}, format: "mp3"},
	{offset: 4, magic: []byte("ftyp"), format: "m4a"},
}

// File is a local audio payload ready for submission.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Validate checks name, type, size, and content of f and returns a copy with
// a sanitized name and a resolved MIME type.
func Validate(f File) (File, error) {
	name := SanitizeFileName(f.Name)
	if name == "" {
		return File{}, invalid("file name is empty")
	}
	ext := strings.ToLower(filepath.Ext(name))
	defaultMIME, ok := allowedExtensions[ext]
	if !ok {
		return File{}, invalid(fmt.Sprintf("unsupported file extension %q (allowed: .mp3, .wav, .m4a)", ext))
	}

	mimeType := strings.ToLower(strings.TrimSpace(f.MIMEType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = defaultMIME
	}
	if _, ok := allowedMIMETypes[mimeType]; !ok {
		return File{}, invalid(fmt.Sprintf("unsupported content type %q", mimeType))
	}

	if len(f.Data) == 0 {
		return File{}, invalid("file is empty")
	}
	if len(f.Data) > MaxFileSize {
		return File{}, invalid(fmt.Sprintf("file exceeds %d MiB limit", MaxFileSize>>20))
	}
	if _, ok := SniffFormat(f.Data); !ok {
		return File{}, invalid("file content is not a recognised audio format")
	}

	return File{Name: name, MIMEType: mimeType, Data: f.Data}, nil
}

// SniffFormat identifies the container from leading magic bytes.
func SniffFormat(data []byte) (string, bool) {
	for _, sig := range signatures {
		end := sig.offset + len(sig.magic)
		if len(data) >= end && bytes.Equal(data[sig.offset:end], sig.magic) {
			return sig.format, true
		}
	}
	return "", false
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// SanitizeFileName reduces name to a safe base name: path components and NUL
// bytes removed, compatibility-decomposed with combining marks dropped, unsafe
// characters replaced with underscores, and capped at 255 bytes.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return ""
	}

	decomposed, _, err := transform.String(transform.Chain(norm.NFKD, stripMarks), name)
	if err != nil {
		decomposed = norm.NFKD.String(name)
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	for i, r := range decomposed {
		switch {
		case i == 0 && (r == '-' || r == '.'):
			b.WriteRune('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '.', r == '-', unicode.IsSpace(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return truncateUTF8(b.String(), maxNameBytes)
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func invalid(message string) error {
	return services.Wrap(services.ErrInvalidInput, "upload", "validate", message, nil)
}
