package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// ReferenceFetcher loads the stored reference photo of an employee.
type ReferenceFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FaceClient talks to the face service:
//
//	POST verifyURL    multipart image1 (candidate), image2 (reference) -> {"verified": bool}
//	POST recognizeURL multipart file                                   -> {"employeeId": "..."}
//
// An empty or missing employeeId in the recognition reply means no match.
type FaceClient struct {
	verifyURL    string
	recognizeURL string
	references   ReferenceFetcher
	http         *http.Client
}

var _ attendance.FaceVerifier = (*FaceClient)(nil)

// NewFaceClient creates a client. A nil fetcher downloads references over HTTP.
func NewFaceClient(verifyURL, recognizeURL string, references ReferenceFetcher, timeout time.Duration) *FaceClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &FaceClient{
		verifyURL:    verifyURL,
		recognizeURL: recognizeURL,
		http:         &http.Client{Timeout: timeout},
	}
	if references == nil {
		references = &HTTPFetcher{http: c.http}
	}
	c.references = references
	return c
}

func (c *FaceClient) Verify(ctx context.Context, employeeID string, image []byte, referenceURL string) (attendance.Verdict, error) {
	if c.verifyURL == "" {
		return "", fmt.Errorf("face verification endpoint not configured")
	}
	if referenceURL == "" {
		return "", fmt.Errorf("employee %s has no reference photo", employeeID)
	}
	reference, err := c.references.Fetch(ctx, referenceURL)
	if err != nil {
		return "", fmt.Errorf("failed to load reference photo: %w", err)
	}

	var reply struct {
		Verified *bool `json:"verified"`
	}
	err = c.postImages(ctx, c.verifyURL, map[string][]byte{"image1": image, "image2": reference}, &reply)
	if err != nil {
		return "", err
	}
	if reply.Verified == nil {
		return "", fmt.Errorf("face verification: reply has no verified field")
	}
	if *reply.Verified {
		return attendance.VerdictPresent, nil
	}
	return attendance.VerdictAbsent, nil
}

func (c *FaceClient) Recognize(ctx context.Context, image []byte) (string, bool, error) {
	if c.recognizeURL == "" {
		return "", false, fmt.Errorf("face recognition endpoint not configured")
	}
	var reply struct {
		EmployeeID string `json:"employeeId"`
	}
	if err := c.postImages(ctx, c.recognizeURL, map[string][]byte{"file": image}, &reply); err != nil {
		return "", false, err
	}
	id := strings.TrimSpace(reply.EmployeeID)
	return id, id != "", nil
}

func (c *FaceClient) postImages(ctx context.Context, endpoint string, files map[string][]byte, dest any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	// fixed order keeps requests reproducible
	for _, field := range []string{"image1", "image2", "file"} {
		data, ok := files[field]
		if !ok {
			continue
		}
		part, err := w.CreateFormFile(field, field+".jpg")
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("face service error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("face service: malformed response: %w", err)
	}
	return nil
}

// HTTPFetcher downloads reference photos with GET.
type HTTPFetcher struct {
	http *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{http: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}
