// Package wordpress publishes posts and media through the WordPress REST API
// (wp-json/wp/v2) using application-password basic auth.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultPostStatus = "draft"
	maxErrorBodyBytes = 4096
	maxImageBytes     = 20 << 20
)

// Recorder persists publisher-side diagnostics. *artifact.Store satisfies it.
type Recorder interface {
	Put(ctx context.Context, path string, payload any, tags artifact.Tags) error
	Append(ctx context.Context, prefix string, payload any, tags artifact.Tags) (string, error)
}

type Options struct {
	BaseURL     string
	Username    string
	AppPassword string
	PostStatus  string
	HTTPClient  *http.Client
	Recorder    Recorder
	Logger      zerolog.Logger
	Now         func() time.Time
}

type Client struct {
	baseURL     string
	username    string
	appPassword string
	postStatus  string
	client      *http.Client
	recorder    Recorder
	logger      zerolog.Logger
	now         func() time.Time
}

type mediaResponse struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url"`
}

type postRequest struct {
	Title         string            `json:"title"`
	Slug          string            `json:"slug,omitempty"`
	Content       string            `json:"content"`
	Excerpt       string            `json:"excerpt,omitempty"`
	Status        string            `json:"status"`
	FeaturedMedia int               `json:"featured_media,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}

type postResponse struct {
	ID      int    `json:"id"`
	Link    string `json:"link"`
	DateGMT string `json:"date_gmt"`
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("wordpress api url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	status := strings.TrimSpace(opts.PostStatus)
	if status == "" {
		status = defaultPostStatus
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:     baseURL,
		username:    opts.Username,
		appPassword: opts.AppPassword,
		postStatus:  status,
		client:      client,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		now:         now,
	}, nil
}

// UploadAsset uploads image to the media library. When the image only carries
// a URL the bytes are downloaded first.
func (c *Client) UploadAsset(ctx context.Context, image domain.GeneratedImage, filename string) (*domain.UploadedAsset, error) {
	data, mimeType, err := c.imageBytes(ctx, image)
	if err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrAssetUploadFailure, Op: "download image", Err: err}
	}
	filename = ensureExtension(filename, mimeType)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrAssetUploadFailure, Op: "upload media", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrAssetUploadFailure, Op: "upload media", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrAssetUploadFailure, Op: "upload media", Err: err}
	}

	var out mediaResponse
	if err := c.do(ctx, http.MethodPost, "/media", writer.FormDataContentType(), &body, &out); err != nil {
		return nil, asUpstream(err, domain.ErrAssetUploadFailure, "upload media")
	}
	if out.ID == 0 || out.SourceURL == "" {
		return nil, &domain.UpstreamError{Kind: domain.ErrAssetUploadFailure, Op: "upload media", Err: errors.New("response missing id or source_url")}
	}
	c.logger.Info().Int("media_id", out.ID).Str("filename", filename).Msg("wordpress: media uploaded")
	return &domain.UploadedAsset{ID: strconv.Itoa(out.ID), URL: out.SourceURL}, nil
}

// CreatePost creates the post with Yoast SEO meta. The first complete featured
// image becomes the post's featured media.
func (c *Client) CreatePost(ctx context.Context, pkg domain.PostPackage) (*domain.PublishedPost, error) {
	req := postRequest{
		Title:   pkg.Title,
		Slug:    pkg.Slug,
		Content: pkg.HTML,
		Excerpt: pkg.Excerpt,
		Status:  c.postStatus,
		Meta: map[string]string{
			"_yoast_wpseo_title":    pkg.Metadata.Title,
			"_yoast_wpseo_metadesc": pkg.Metadata.Description,
			"_yoast_wpseo_focuskw":  pkg.Metadata.FocusKeyword,
		},
	}
	if featured, ok := (domain.ImageResolution{Images: pkg.Images}).Featured(); ok {
		if id, err := strconv.Atoi(featured.PublishedAssetID); err == nil {
			req.FeaturedMedia = id
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("wordpress: encode post: %w", err)
	}
	var out postResponse
	if err := c.do(ctx, http.MethodPost, "/posts", "application/json", bytes.NewReader(payload), &out); err != nil {
		upErr := asUpstream(err, domain.ErrPublishFailure, "create post")
		c.recordError(ctx, "creation", pkg, upErr)
		return nil, upErr
	}
	if out.ID == 0 {
		upErr := &domain.UpstreamError{Kind: domain.ErrPublishFailure, Op: "create post", Err: errors.New("response missing id")}
		c.recordError(ctx, "creation", pkg, upErr)
		return nil, upErr
	}

	post := &domain.PublishedPost{
		RemoteID:  strconv.Itoa(out.ID),
		RemoteURL: out.Link,
		CreatedAt: parseGMT(out.DateGMT, c.now()),
	}
	c.recordResult(ctx, post, pkg)
	c.logger.Info().Str("remote_id", post.RemoteID).Str("slug", pkg.Slug).Msg("wordpress: post created")
	return post, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.appPassword != "" {
		req.SetBasicAuth(c.username, c.appPassword)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &domain.UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) imageBytes(ctx context.Context, image domain.GeneratedImage) ([]byte, string, error) {
	if len(image.Data) > 0 {
		return image.Data, mimeOrSniff(image.MIMEType, image.Data), nil
	}
	if strings.TrimSpace(image.URL) == "" {
		return nil, "", errors.New("image has neither data nor url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, image.URL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("downloaded image is empty")
	}
	return data, mimeOrSniff(firstNonEmpty(image.MIMEType, resp.Header.Get("Content-Type")), data), nil
}

func (c *Client) recordResult(ctx context.Context, post *domain.PublishedPost, pkg domain.PostPackage) {
	if c.recorder == nil {
		return
	}
	result := map[string]any{
		"success":       true,
		"wordpress_id":  post.RemoteID,
		"wordpress_url": post.RemoteURL,
		"created_at":    post.CreatedAt,
		"original_data": pkg,
	}
	tags := artifact.Tags{"type": "creation_result", "wordpress_id": post.RemoteID, "slug": pkg.Slug}
	if err := c.recorder.Put(ctx, artifact.PostPath(post.RemoteID, artifact.CreationResult), result, tags); err != nil {
		c.logger.Warn().Err(err).Str("remote_id", post.RemoteID).Msg("wordpress: could not store creation result")
	}
}

func (c *Client) recordError(ctx context.Context, operation string, pkg domain.PostPackage, err error) {
	c.logger.Error().Err(err).Str("slug", pkg.Slug).Msg("wordpress: post " + operation + " failed")
	if c.recorder == nil {
		return
	}
	entry := map[string]any{
		"timestamp": c.now().UTC(),
		"operation": operation,
		"slug":      pkg.Slug,
		"title":     pkg.Title,
		"error":     err.Error(),
		"response":  domain.UpstreamPayload(err),
	}
	tags := artifact.Tags{"type": "post_" + operation + "_error", "slug": pkg.Slug}
	if _, recErr := c.recorder.Append(ctx, artifact.PublisherErrorLogPrefix(artifact.DateKey(c.now())), entry, tags); recErr != nil {
		c.logger.Warn().Err(recErr).Msg("wordpress: could not store error log")
	}
}

// asUpstream attaches kind and op to an error returned by do.
func asUpstream(err error, kind error, op string) *domain.UpstreamError {
	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) {
		return &domain.UpstreamError{Kind: kind, Op: op, Status: upErr.Status, Body: upErr.Body}
	}
	return &domain.UpstreamError{Kind: kind, Op: op, Err: err}
}

func mimeOrSniff(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	return http.DetectContentType(data)
}

func ensureExtension(filename, mimeType string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "image"
	}
	if path.Ext(filename) != "" {
		return filename
	}
	switch mimeType {
	case "image/jpeg":
		return filename + ".jpg"
	case "image/webp":
		return filename + ".webp"
	case "image/gif":
		return filename + ".gif"
	default:
		return filename + ".png"
	}
}

func parseGMT(value string, fallback time.Time) time.Time {
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.UTC()
	}
	return fallback.UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ domain.Publisher = (*Client)(nil)
