package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"earmark/internal/analysis"
	"earmark/internal/logging"
	"earmark/internal/services"
	"earmark/internal/upload"
)

// Remote is the subset of the service client used for submission.
type Remote interface {
	NotifyObjectReady(ctx context.Context, bucket, fileName string) (string, error)
	SubmitLinkJob(ctx context.Context, link string, tier analysis.Tier) (string, error)
	AnalyzeInline(ctx context.Context, jobID, fileName, contentType string, data []byte) (analysis.Result, error)
}

// Uploader is the signed-upload path.
type Uploader interface {
	RequestTarget(ctx context.Context, fileName, mimeType string) (upload.Target, error)
	Transfer(ctx context.Context, target upload.Target, data []byte) error
}

// Input is one unit of work to submit.
type Input struct {
	Kind analysis.Kind
	File upload.File
	Link string
}

// FileInput builds an Input for local audio bytes.
func FileInput(name, mimeType string, data []byte) Input {
	return Input{Kind: analysis.KindFile, File: upload.File{Name: name, MIMEType: mimeType, Data: data}}
}

// LinkInput builds an Input for a remote link.
func LinkInput(link string) Input {
	return Input{Kind: analysis.KindLink, Link: link}
}

// Source describes the input for logs and local bookkeeping.
func (in Input) Source() string {
	if in.Kind == analysis.KindLink {
		return in.Link
	}
	return in.File.Name
}

// Submitter routes inputs to the remote service.
type Submitter struct {
	remote   Remote
	uploader Uploader
	registry *Registry
	logger   *slog.Logger
	newID    func() string
}

// Option customises Submitter construction.
type Option func(*Submitter)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Submitter) {
		s.logger = logger
	}
}

// WithIDGenerator overrides inline id generation (used in tests).
func WithIDGenerator(newID func() string) Option {
	return func(s *Submitter) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New builds a Submitter. registry receives inline results.
func New(remote Remote, uploader Uploader, registry *Registry, opts ...Option) *Submitter {
	s := &Submitter{
		remote:   remote,
		uploader: uploader,
		registry: registry,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	s.logger = logging.NewComponentLogger(s.logger, "submit")
	return s
}

// Registry exposes the pre-completed result registry.
func (s *Submitter) Registry() *Registry {
	return s.registry
}

// Submit sends in for analysis under tier and returns a job id. Errors are
// classified with the services markers.
func (s *Submitter) Submit(ctx context.Context, in Input, tier analysis.Tier) (string, error) {
	switch in.Kind {
	case analysis.KindFile:
		return s.submitFile(ctx, in.File, tier)
	case analysis.KindLink:
		return s.submitLink(ctx, in.Link, tier)
	default:
		return "", services.Wrap(services.ErrInvalidInput, "submit", "submit", fmt.Sprintf("unknown input kind %q", in.Kind), nil)
	}
}

func (s *Submitter) submitFile(ctx context.Context, file upload.File, tier analysis.Tier) (string, error) {
	validated, err := upload.Validate(file)
	if err != nil {
		return "", err
	}
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String("file_name", validated.Name),
		logging.String(logging.FieldTier, string(tier)),
	)

	jobID, err := s.uploadAndNotify(ctx, validated)
	if err == nil {
		logger.Info("file submitted via signed upload", logging.String(logging.FieldJobID, jobID))
		return jobID, nil
	}
	if !errors.Is(err, upload.ErrFallbackRequired) {
		return "", err
	}

	logging.WarnWithContext(logger, "signed upload unavailable; submitting inline", "upload_fallback",
		logging.Error(err),
		logging.String(logging.FieldImpact, "file sent in a single synchronous request"),
	)
	inlineID := analysis.InlineJobPrefix + s.newID()
	result, err := s.remote.AnalyzeInline(ctx, inlineID, validated.Name, validated.MIMEType, validated.Data)
	if err != nil {
		return "", err
	}
	s.registry.Put(inlineID, result)
	logger.Info("file analyzed inline", logging.String(logging.FieldJobID, inlineID))
	return inlineID, nil
}

func (s *Submitter) uploadAndNotify(ctx context.Context, file upload.File) (string, error) {
	target, err := s.uploader.RequestTarget(ctx, file.Name, file.MIMEType)
	if err != nil {
		return "", err
	}
	if err := s.uploader.Transfer(ctx, target, file.Data); err != nil {
		return "", err
	}
	objectName := target.FileName
	if objectName == "" {
		objectName = file.Name
	}
	return s.remote.NotifyObjectReady(ctx, target.Bucket, objectName)
}

func (s *Submitter) submitLink(ctx context.Context, link string, tier analysis.Tier) (string, error) {
	normalized, err := ValidateLink(link)
	if err != nil {
		return "", err
	}
	jobID, err := s.remote.SubmitLinkJob(ctx, normalized, tier)
	if err != nil {
		return "", err
	}
	logging.WithContext(ctx, s.logger).Info("link submitted",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldTier, string(tier)),
	)
	return jobID, nil
}

// ValidateLink requires an absolute http or https URL with a host.
func ValidateLink(link string) (string, error) {
	trimmed := strings.TrimSpace(link)
	if trimmed == "" {
		return "", services.Wrap(services.ErrInvalidInput, "submit", "validate link", "link is empty", nil)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", services.Wrap(services.ErrInvalidInput, "submit", "validate link", "link is not a valid URL", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", services.Wrap(services.ErrInvalidInput, "submit", "validate link", "link must use http or https", nil)
	}
	if parsed.Host == "" {
		return "", services.Wrap(services.ErrInvalidInput, "submit", "validate link", "link must include a host", nil)
	}
	return parsed.String(), nil
}
