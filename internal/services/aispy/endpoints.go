package aispy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"earmark/internal/analysis"
	"earmark/internal/auth"
	"earmark/internal/logging"
	"earmark/internal/services"
)

// UploadTarget is a short-lived signed PUT destination.
type UploadTarget struct {
	SignedURL string
	FileName  string
	Bucket    string
}

// JobStatus is one observation of a remote job.
type JobStatus struct {
	State   analysis.State
	Result  *analysis.Result
	Error   string
	Message string
	Limited bool
}

// ChatReply is the assistant's answer plus the running conversation context.
type ChatReply struct {
	Response string
	Context  string
}

// ChatUsage reports the remote view of the per-job chat quota.
type ChatUsage struct {
	MessageCount int
	Limit        int
	Remaining    int
}

// ChatMessage is one outbound chat turn.
type ChatMessage struct {
	Message      string
	Context      string
	AnalysisData map[string]any
}

// IssueCredential exchanges a pseudonymous identity for a bearer credential.
func (c *Client) IssueCredential(ctx context.Context, identity string) (auth.Issued, error) {
	var resp tokenResponse
	err := c.call(ctx, requestSpec{
		op:       "issue credential",
		method:   http.MethodPost,
		endpoint: "/auth/token",
		body:     jsonBody(tokenRequest{AppUserID: identity}),
	}, &resp)
	if err != nil {
		return auth.Issued{}, err
	}
	return auth.Issued{
		Token:     strings.TrimSpace(resp.Token),
		ExpiresIn: time.Duration(resp.ExpiresIn * float64(time.Second)),
	}, nil
}

// RequestUploadTarget asks for a signed upload destination. The gateway owns
// the attempt budget, so this makes a single attempt.
func (c *Client) RequestUploadTarget(ctx context.Context, fileName, fileType string) (UploadTarget, error) {
	var resp uploadURLResponse
	err := c.call(ctx, requestSpec{
		op:         "request upload target",
		method:     http.MethodPost,
		endpoint:   "/generate-upload-url",
		body:       jsonBody(uploadURLRequest{FileName: fileName, FileType: fileType}),
		authorized: true,
	}, &resp)
	if err != nil {
		return UploadTarget{}, err
	}
	if strings.TrimSpace(resp.SignedURL) == "" {
		return UploadTarget{}, services.Wrap(services.ErrRemoteRejected, "aispy", "request upload target", "response missing signed_url", nil)
	}
	return UploadTarget{SignedURL: resp.SignedURL, FileName: resp.FileName, Bucket: resp.Bucket}, nil
}

// PutObject transfers bytes to a signed URL. Signed URLs carry their own
// authorization.
func (c *Client) PutObject(ctx context.Context, signedURL, contentType string, data []byte) error {
	return c.call(ctx, requestSpec{
		op:       "put object",
		method:   http.MethodPut,
		endpoint: signedURL,
		body: func() (io.Reader, string, error) {
			return bytes.NewReader(data), contentType, nil
		},
	}, nil)
}

// NotifyObjectReady starts analysis of an uploaded object and returns the job id.
func (c *Client) NotifyObjectReady(ctx context.Context, bucket, fileName string) (string, error) {
	var resp taskResponse
	err := c.call(ctx, requestSpec{
		op:         "notify object ready",
		method:     http.MethodPost,
		endpoint:   "/report",
		body:       jsonBody(reportRequest{BucketName: bucket, FileName: fileName}),
		authorized: true,
		retry:      true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return requireTaskID("notify object ready", resp)
}

// SubmitLinkJob posts a link to the route for tier and returns the job id.
func (c *Client) SubmitLinkJob(ctx context.Context, link string, tier analysis.Tier) (string, error) {
	route := c.cfg.LinkRouteFree
	if tier == analysis.TierPro {
		route = c.cfg.LinkRoutePro
	}
	var resp taskResponse
	err := c.call(ctx, requestSpec{
		op:         "submit link",
		method:     http.MethodPost,
		endpoint:   route,
		body:       jsonBody(linkRequest{URL: link}),
		authorized: true,
		retry:      true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return requireTaskID("submit link", resp)
}

// AnalyzeInline uploads bytes in one multipart request and returns the
// completed result synchronously.
func (c *Client) AnalyzeInline(ctx context.Context, jobID, fileName, contentType string, data []byte) (analysis.Result, error) {
	var resp statusResponse
	err := c.call(ctx, requestSpec{
		op:         "analyze inline",
		method:     http.MethodPost,
		endpoint:   "/analyze",
		body:       multipartBody(fileName, contentType, data),
		authorized: true,
		retry:      true,
	}, &resp)
	if err != nil {
		return analysis.Result{}, err
	}
	if strings.EqualFold(resp.Status, "error") {
		return analysis.Result{}, services.Wrap(services.ErrRemoteRejected, "aispy", "analyze inline", firstNonEmpty(resp.Error, resp.Detail, "analysis failed"), nil)
	}
	result, err := decodeResult(jobID, resp)
	if err != nil {
		return analysis.Result{}, services.Wrap(services.ErrRemoteRejected, "aispy", "analyze inline", "decode result", err)
	}
	return result, nil
}

// GetJobStatus fetches one status observation. It makes a single attempt; the
// monitor owns the poll failure policy.
func (c *Client) GetJobStatus(ctx context.Context, jobID string, tier analysis.Tier) (JobStatus, error) {
	var resp statusResponse
	err := c.call(ctx, requestSpec{
		op:         "get job status",
		method:     http.MethodGet,
		endpoint:   "/report-status/" + url.PathEscape(jobID),
		query:      boolQuery("has_subscription", tier.HasSubscription()),
		authorized: true,
	}, &resp)
	if err != nil {
		return JobStatus{}, err
	}

	return c.statusFromResponse(jobID, resp), nil
}

// DecodeStatus parses a status document delivered out of band, such as a
// push notification body. A completed document without result items is a bare
// completion signal and yields a completed status with a nil Result; the
// caller fetches the result itself.
func (c *Client) DecodeStatus(jobID string, body []byte) (JobStatus, error) {
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return JobStatus{}, services.Wrap(services.ErrInvalidInput, "aispy", "decode status", "invalid status document", err)
	}
	if isCompleted(resp.Status) && len(resp.Result) == 0 && len(resp.Results) == 0 {
		return JobStatus{State: analysis.StateCompleted, Limited: resp.IsLimited}, nil
	}
	return c.statusFromResponse(jobID, resp), nil
}

func isCompleted(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "completed")
}

func (c *Client) statusFromResponse(jobID string, resp statusResponse) JobStatus {
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "completed":
		result, err := decodeResult(jobID, resp)
		if err != nil {
			c.logger.Warn("completed job carried an unreadable result",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "status_decode_failed"),
				logging.String(logging.FieldErrorHint, "check remote service result format"),
				logging.String(logging.FieldImpact, "job reported as failed"),
			)
			return JobStatus{State: analysis.StateFailed, Error: "result payload unreadable: " + err.Error()}
		}
		return JobStatus{State: analysis.StateCompleted, Result: &result, Limited: resp.IsLimited}
	case "error", "failed":
		return JobStatus{State: analysis.StateFailed, Error: firstNonEmpty(resp.Error, resp.Detail, "analysis failed")}
	default:
		return JobStatus{State: analysis.StatePending, Message: firstNonEmpty(resp.Message, "Analyzing audio...")}
	}
}

// SendChatMessage sends one chat turn about a completed job.
func (c *Client) SendChatMessage(ctx context.Context, jobID string, tier analysis.Tier, msg ChatMessage) (ChatReply, error) {
	query := boolQuery("has_subscription", tier.HasSubscription())
	if jobID != "" {
		query.Set("task_id", jobID)
	}
	var resp chatResponse
	err := c.call(ctx, requestSpec{
		op:       "send chat message",
		method:   http.MethodPost,
		endpoint: "/chat",
		query:    query,
		body: jsonBody(chatRequest{
			Message:      msg.Message,
			Context:      msg.Context,
			AnalysisData: msg.AnalysisData,
		}),
		authorized: true,
	}, &resp)
	if err != nil {
		return ChatReply{}, err
	}
	return ChatReply{Response: resp.Response, Context: resp.Context}, nil
}

// GetChatUsage returns the remote chat counter for a job.
func (c *Client) GetChatUsage(ctx context.Context, jobID string) (ChatUsage, error) {
	var resp chatUsageResponse
	err := c.call(ctx, requestSpec{
		op:         "get chat usage",
		method:     http.MethodGet,
		endpoint:   "/chat-usage/" + url.PathEscape(jobID),
		authorized: true,
	}, &resp)
	if err != nil {
		return ChatUsage{}, err
	}
	return ChatUsage{MessageCount: resp.MessageCount, Limit: resp.Limit, Remaining: resp.Remaining}, nil
}

func requireTaskID(op string, resp taskResponse) (string, error) {
	id := strings.TrimSpace(resp.TaskID)
	if id == "" {
		return "", services.Wrap(services.ErrRemoteRejected, "aispy", op, "response missing task_id", nil)
	}
	return id, nil
}

func multipartBody(fileName, contentType string, data []byte) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("write multipart part: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("close multipart writer: %w", err)
		}
		return &buf, writer.FormDataContentType(), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
