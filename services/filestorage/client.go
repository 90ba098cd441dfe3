// Package filestorage proxies uploaded files to the file-storage microservice.
package filestorage

import (
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

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/file"
)

// StatusError is returned when the storage answers with an unexpected status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// temporary reports whether the call may succeed if retried.
func (e *StatusError) temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	attempts   uint
	retryDelay time.Duration
}

var _ file.Storage = (*Client)(nil) // interface compliance check

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(conf.FileStore.BaseURL, "/"),
		token:      conf.FileStore.ServiceToken,
		httpClient: &http.Client{Timeout: conf.FileStore.Timeout},
		attempts:   conf.FileStore.MaxRetries + 1,
		retryDelay: 200 * time.Millisecond,
	}
}

func (c *Client) URL(key string) string {
	return c.baseURL + "/files/" + url.PathEscape(key)
}

type uploadResponse struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Upload streams r as the "file" part of a multipart form. The body is not buffered, so uploads are never retried.
func (c *Client) Upload(ctx context.Context, name, contentType string, r io.Reader) (file.StoredObject, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		hdr.Set("Content-Type", contentType)

		part, err := mw.CreatePart(hdr)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", pr)
	if err != nil {
		_ = pr.Close()
		return file.StoredObject{}, errors.Wrap(err, "creating upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		_ = pr.Close()
		return file.StoredObject{}, errors.Wrap(err, "uploading file")
	}
	defer drain(res)

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return file.StoredObject{}, newStatusError(req, res)
	}

	var body uploadResponse
	if err = json.NewDecoder(res.Body).Decode(&body); err != nil {
		return file.StoredObject{}, errors.Wrap(err, "decoding upload response")
	}
	if body.Key == "" {
		return file.StoredObject{}, errors.New("upload response has no key")
	}
	return file.StoredObject{Key: body.Key, URL: body.URL, Size: body.Size}, nil
}

// Delete removes the object stored under key; missing objects are not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.URL(key), nil)
			if err != nil {
				return retry.Unrecoverable(errors.Wrap(err, "creating delete request"))
			}
			c.authorize(req)

			res, err := c.httpClient.Do(req)
			if err != nil {
				return errors.Wrap(err, "deleting file")
			}
			defer drain(res)

			switch res.StatusCode {
			case http.StatusOK, http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
				return nil
			}
			return newStatusError(req, res)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var sErr *StatusError
			if errors.As(err, &sErr) {
				return sErr.temporary()
			}
			return true
		}),
	)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func newStatusError(req *http.Request, res *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return &StatusError{
		Method: req.Method,
		URL:    req.URL.String(),
		Code:   res.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
