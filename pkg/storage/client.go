// Package storage is a client for the decentralized storage network: the
// indexer that accepts uploads and the gateway that serves file content.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/concierge-labs/concierge/internal/resilience"
)

// alreadyExistsMarker is the indexer's error text for a duplicate upload.
const alreadyExistsMarker = "Data already exists"

// Client defines the storage network operations.
type Client interface {
	// Upload stores data under name and returns its root hash.
	Upload(ctx context.Context, name string, data []byte) (*UploadResult, error)
	// Download returns the text content of the file with the given root hash.
	Download(ctx context.Context, rootHash string) (string, error)
}

// UploadResult describes a stored file.
type UploadResult struct {
	RootHash      string `json:"rootHash"`
	TxHash        string `json:"txHash,omitempty"`
	AlreadyExists bool   `json:"alreadyExists"`
}

type uploadResponse struct {
	Root   string `json:"root"`
	TxHash string `json:"txHash"`
	Error  string `json:"error"`
}

// Option configures the storage client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps indexer requests per second. Zero or less disables the limit.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithRetry sets the retry policy for indexer and gateway calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	indexerURL string
	gatewayURL string
	http       *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient creates a storage client. gatewayURL defaults to indexerURL.
func NewClient(indexerURL, gatewayURL string, opts ...Option) Client {
	if gatewayURL == "" {
		gatewayURL = indexerURL
	}
	c := &httpClient{
		indexerURL: strings.TrimRight(indexerURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		http:       &http.Client{Timeout: 2 * time.Minute},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "storage: rate limit")
}

// Upload sends data to the indexer as a multipart form. A duplicate upload
// is not an error: the result is flagged AlreadyExists and carries the
// locally computed root.
func (c *httpClient) Upload(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	localRoot := MerkleRoot(data).Hex()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("root", localRoot); err != nil {
		return nil, eris.Wrap(err, "storage: write root field")
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, eris.Wrap(err, "storage: create form file")
	}
	if _, err := fw.Write(data); err != nil {
		return nil, eris.Wrap(err, "storage: write form file")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "storage: close multipart writer")
	}
	payload := body.Bytes()

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("storage", "upload")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*UploadResult, error) {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.indexerURL+"/file/upload", bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrap(err, "storage: create upload request")
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "storage: upload request")
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "storage: read upload response")
		}

		if strings.Contains(string(respBody), alreadyExistsMarker) {
			zap.L().Info("storage: file already stored", zap.String("name", name), zap.String("root", localRoot))
			return &UploadResult{RootHash: localRoot, AlreadyExists: true}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &resilience.StatusError{Service: "storage", StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var ur uploadResponse
		if err := json.Unmarshal(respBody, &ur); err != nil {
			return nil, eris.Wrap(err, "storage: unmarshal upload response")
		}
		if ur.Error != "" {
			return nil, eris.Errorf("storage: upload %s: %s", name, ur.Error)
		}

		root := localRoot
		if ur.Root != "" {
			if !strings.EqualFold(ur.Root, localRoot) {
				zap.L().Warn("storage: indexer root differs from local root",
					zap.String("name", name),
					zap.String("indexer_root", ur.Root),
					zap.String("local_root", localRoot),
				)
			}
			root = ur.Root
		}
		return &UploadResult{RootHash: root, TxHash: ur.TxHash}, nil
	})
}

// Download fetches a file's content from the gateway, retrying while the
// gateway reports missing segments. Non-UTF-8 charsets named in the
// Content-Type are decoded.
func (c *httpClient) Download(ctx context.Context, rootHash string) (string, error) {
	if rootHash == "" {
		return "", eris.New("storage: download: empty root hash")
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("storage", "download")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		reqURL := c.gatewayURL + "/file?root=" + url.QueryEscape(rootHash)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return "", eris.Wrap(err, "storage: create download request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return "", eris.Wrap(err, "storage: download request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", eris.Wrap(err, "storage: read download response")
		}
		if resp.StatusCode != http.StatusOK {
			return "", &resilience.StatusError{Service: "storage", StatusCode: resp.StatusCode, Body: string(body)}
		}

		return decodeBody(body, resp.Header.Get("Content-Type"))
	})
}

func decodeBody(body []byte, contentType string) (string, error) {
	if contentType == "" {
		return string(body), nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		zap.L().Debug("storage: unknown charset, returning raw bytes", zap.String("charset", charset))
		return string(body), nil
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "storage: decode %s content", charset)
	}
	return string(decoded), nil
}
