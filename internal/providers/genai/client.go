// Package genai implements text and image generation against the Gemini
// generateContent REST API.
package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/domain"
)

const (
	providerName       = "gemini"
	finishMaxTokens    = "MAX_TOKENS"
	maxErrorBodyBytes  = 4096
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultTextModel   = "gemini-1.5-flash"
	defaultImageModel  = "gemini-2.5-flash-image"
	defaultHTTPTimeout = 3 * time.Minute
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to Gemini for both structured text and images. Without an API
// key image generation produces deterministic synthetic PNGs so the pipeline
// can run locally; text generation always requires a key.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	httpClient *http.Client
	logger     zerolog.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	Temperature        float64  `json:"temperature,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      firstNonEmpty(strings.TrimSpace(opts.Model), defaultTextModel),
		imageModel: firstNonEmpty(strings.TrimSpace(opts.ImageModel), defaultImageModel),
		httpClient: client,
		logger:     opts.Logger,
	}, nil
}

// Model returns the configured Gemini text model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateStructured sends the bundle as a single-turn request and returns the
// concatenated text parts of the first candidate.
func (c *Client) GenerateStructured(ctx context.Context, bundle domain.PromptBundle) (string, error) {
	if c.apiKey == "" {
		return "", &domain.GenerationError{Provider: providerName, Err: errors.New("gemini api key is not configured")}
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: bundle.User}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:  1,
			MaxOutputTokens: bundle.MaxTokens,
			Temperature:     0.7,
		},
	}
	if strings.TrimSpace(bundle.System) != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: bundle.System}}}
	}
	if bundle.JSON {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, c.model, payload, &response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 {
		return "", &domain.GenerationError{Provider: providerName, Err: errors.New("no candidates")}
	}
	candidate := response.Candidates[0]
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if candidate.FinishReason == finishMaxTokens {
		return "", &domain.GenerationError{Provider: providerName, Truncated: true, Body: text}
	}
	if text == "" {
		return "", &domain.GenerationError{Provider: providerName, Err: errors.New("empty response")}
	}

	c.logger.Debug().
		Str("prompt", bundle.Name).
		Str("model", c.model).
		Int("chars", len(text)).
		Msg("genai: completion received")

	return text, nil
}

// GenerateImage returns one image for prompt. size is "WIDTHxHEIGHT" or an
// aspect ratio such as "16:9".
func (c *Client) GenerateImage(ctx context.Context, prompt, size string) (*domain.GeneratedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return c.syntheticImage(prompt, size), nil
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildImagePrompt(prompt, size)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:     1,
			ResponseModalities: []string{"IMAGE"},
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, c.imageModel, payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := c.decodeInlineAsset(ctx, part)
			if err != nil {
				c.logger.Warn().Err(err).Msg("genai: skipping undecodable image part")
				continue
			}
			if len(asset.Data) == 0 {
				continue
			}
			c.logger.Debug().
				Str("model", c.imageModel).
				Int("bytes", len(asset.Data)).
				Msg("genai: generated remote image")
			return &domain.GeneratedImage{
				URL:      asset.URL,
				MIMEType: firstNonEmpty(asset.Format, "image/png"),
				Data:     asset.Data,
			}, nil
		}
	}
	return nil, &domain.GenerationError{Provider: providerName, Err: errors.New("no image content returned")}
}

func (c *Client) syntheticImage(prompt, size string) *domain.GeneratedImage {
	width, height := normalizeSize(size)
	seed := deterministicSeed(c.imageModel, prompt, width, height)
	c.logger.Debug().
		Str("model", c.imageModel).
		Str("seed", seed).
		Msg("genai: generated synthetic image")
	return &domain.GeneratedImage{
		MIMEType: "image/png",
		Data:     renderSyntheticImage(width, height, seed),
	}
}

type inlineAsset struct {
	Data   []byte
	Format string
	URL    string
}

func (c *Client) invokeGemini(ctx context.Context, model string, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.baseURL, "/"), url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.GenerationError{Provider: providerName, Err: fmt.Errorf("invoke gemini: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		genErr := &domain.GenerationError{
			Provider:    providerName,
			Status:      resp.StatusCode,
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
			Body:        strings.TrimSpace(string(data)),
		}
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			genErr.Err = errors.New(apiErr.Error.Message)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("model", model).Msg("genai: request failed")
		return genErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.GenerationError{Provider: providerName, Err: fmt.Errorf("decode gemini response: %w", err)}
	}
	return nil
}

func (c *Client) decodeInlineAsset(ctx context.Context, part geminiPart) (inlineAsset, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return inlineAsset{}, fmt.Errorf("decode inline data: %w", err)
		}
		return inlineAsset{Data: data, Format: part.InlineData.MimeType}, nil
	}

	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return inlineAsset{}, err
		}
		return inlineAsset{Data: data, Format: firstNonEmpty(part.FileData.MimeType, mime), URL: part.FileData.FileURI}, nil
	}

	return inlineAsset{}, nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func buildImagePrompt(prompt, size string) string {
	var b strings.Builder
	b.WriteString(firstNonEmpty(strings.TrimSpace(prompt), "Create an editorial blog illustration"))
	width, height := normalizeSize(size)
	if width != height {
		fmt.Fprintf(&b, "\nAspect ratio: %d:%d", width/gcd(width, height), height/gcd(width, height))
	}
	b.WriteString("\nNo text, captions or watermarks in the image.")
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height; y++ {
			xx := x + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: parseHexByte(segment[0:2]), G: parseHexByte(segment[2:4]), B: parseHexByte(segment[4:6]), A: 255}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// normalizeSize accepts "1024x768", aspect ratios like "16:9", or nothing.
func normalizeSize(size string) (int, int) {
	size = strings.TrimSpace(strings.ToLower(size))
	if w, h, ok := strings.Cut(size, "x"); ok {
		width, errW := strconv.Atoi(strings.TrimSpace(w))
		height, errH := strconv.Atoi(strings.TrimSpace(h))
		if errW == nil && errH == nil && width > 0 && height > 0 && width <= 4096 && height <= 4096 {
			return width, height
		}
		return 1024, 1024
	}
	switch size {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:5":
		return 1024, 1280
	case "3:2":
		return 1536, 1024
	case "1:1", "square", "":
		return 1024, 1024
	}
	if a, b, ok := strings.Cut(size, ":"); ok {
		x, errA := strconv.Atoi(strings.TrimSpace(a))
		y, errB := strconv.Atoi(strings.TrimSpace(b))
		if errA == nil && errB == nil && x > 0 && y > 0 {
			return 1024, int(float64(1024) * float64(y) / float64(x))
		}
	}
	return 1024, 1024
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
