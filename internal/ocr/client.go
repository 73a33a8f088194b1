package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// FormField is the multipart field carrying the image
const FormField = "image"

// ProgressFunc receives transport progress. total is 0 when unknown.
type ProgressFunc func(sent, total int64)

// Client uploads ledger photos to the OCR service
type Client struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewClient creates a Client for the OCR endpoint at url (e.g.
// http://localhost:5003/ocr). timeout bounds each upload; zero leaves it to
// the caller's context.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// NewClientWithHTTP creates a Client with a custom http.Client for testing
func NewClientWithHTTP(url string, timeout time.Duration, httpClient *http.Client) *Client {
	return &Client{url: url, client: httpClient, timeout: timeout}
}

// Upload sends one image as multipart form data and returns the parsed
// columns. progress may be nil.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte, progress ProgressFunc) (*Columns, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, formType, err := encodeForm(filename, contentType, data)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	total := int64(body.Len())
	var reader io.Reader = body
	if progress != nil {
		reader = &progressReader{r: body, total: total, fn: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, reader)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("OCR request failed", "filename", filename, "error", err)
		return nil, &TransportError{Sent: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Sent: true, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serverErr := &ServerError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error   any `json:"error"`
			Message any `json:"message"`
		}
		if json.Unmarshal(respBody, &errBody) == nil {
			serverErr.ErrorText = textField(errBody.Error)
			serverErr.MessageText = textField(errBody.Message)
		}
		slog.Warn("OCR server rejected upload",
			"filename", filename,
			"status", resp.StatusCode,
			"error", serverErr.ErrorText,
			"message", serverErr.MessageText,
		)
		return nil, serverErr
	}

	cols, err := ParseColumns(respBody)
	if err != nil {
		return nil, err
	}
	return cols, nil
}

// textField accepts only non-empty strings; anything else is treated as absent
func textField(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func encodeForm(filename, contentType string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("writing form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader reports bytes as the transport consumes the body
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}
