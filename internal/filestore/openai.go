package filestore

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
)

// OpenAIFiles stores files with the OpenAI Files API.
type OpenAIFiles struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIFiles(apiKey, baseURL string, timeout time.Duration) *OpenAIFiles {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIFiles{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type openAIFile struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Purpose   string `json:"purpose"`
}

func (f openAIFile) toFile() *File {
	return &File{
		ID:        f.ID,
		Filename:  f.Filename,
		Bytes:     f.Bytes,
		CreatedAt: time.Unix(f.CreatedAt, 0).UTC(),
		Purpose:   f.Purpose,
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (o *OpenAIFiles) Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (*File, error) {
	var buf bytes.Buffer
	buf.Grow(int(size) + 1024)
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("purpose", Purpose); err != nil {
		return nil, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/files", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out openAIFile
	if err := o.do(req, &out); err != nil {
		return nil, err
	}
	return out.toFile(), nil
}

func (o *OpenAIFiles) Get(ctx context.Context, id string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/files/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var out openAIFile
	if err := o.do(req, &out); err != nil {
		return nil, err
	}
	return out.toFile(), nil
}

func (o *OpenAIFiles) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, o.baseURL+"/files/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return o.do(req, nil)
}

func (o *OpenAIFiles) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("files request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("files request returned %d: %s", resp.StatusCode, errorMessage(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode files response: %w", err)
	}
	return nil
}

// errorMessage pulls error.message out of a provider error body, falling
// back to the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
