package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ImageType distinguishes the post's featured image from inline illustrations.
type ImageType string

const (
	ImageTypeFeatured ImageType = "featured"
	ImageTypeContent  ImageType = "content"
)

// KeywordTask is one pending worklist row.
type KeywordTask struct {
	Keyword string `json:"keyword"`
	Locator string `json:"locator"`
}

// PlanMetadata carries the SEO fields proposed by the planner.
type PlanMetadata struct {
	SEOTitle       string `json:"seo_title"`
	SEODescription string `json:"seo_description"`
	FocusKeyword   string `json:"focus_keyword"`
}

// OutlineSection is a single heading of the planned article.
type OutlineSection struct {
	Heading   string   `json:"heading"`
	KeyPoints []string `json:"key_points"`
}

// ImagePlanItem describes an image the article needs.
type ImagePlanItem struct {
	Type          ImageType `json:"type"`
	Prompt        string    `json:"prompt"`
	AltText       string    `json:"alt_text"`
	PlacementHint string    `json:"placement_hint"`
}

// UnmarshalJSON also accepts the legacy description/alt/placement keys.
func (i *ImagePlanItem) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type          ImageType `json:"type"`
		Prompt        string    `json:"prompt"`
		AltText       string    `json:"alt_text"`
		PlacementHint string    `json:"placement_hint"`
		Description   string    `json:"description"`
		Alt           string    `json:"alt"`
		Placement     string    `json:"placement"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*i = ImagePlanItem{
		Type:          wire.Type,
		Prompt:        firstNonEmpty(wire.Prompt, wire.Description),
		AltText:       firstNonEmpty(wire.AltText, wire.Alt),
		PlacementHint: firstNonEmpty(wire.PlacementHint, wire.Placement),
	}
	return nil
}

// ContentPlan is the structural plan produced for a keyword.
type ContentPlan struct {
	Keyword    string           `json:"keyword"`
	Title      string           `json:"title"`
	Slug       string           `json:"slug"`
	Metadata   PlanMetadata     `json:"metadata"`
	Outline    []OutlineSection `json:"outline"`
	ImagePlans []ImagePlanItem  `json:"image_plans"`
}

// UnmarshalJSON accepts both image_plans and the legacy images key.
func (p *ContentPlan) UnmarshalJSON(data []byte) error {
	type plain ContentPlan
	var wire struct {
		plain
		Images []ImagePlanItem `json:"images"`
		Meta   *struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			FocusKeyword string `json:"focus_keyword"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = ContentPlan(wire.plain)
	if p.ImagePlans == nil && wire.Images != nil {
		p.ImagePlans = wire.Images
	}
	if wire.Meta != nil {
		p.Metadata.SEOTitle = firstNonEmpty(p.Metadata.SEOTitle, wire.Meta.Title)
		p.Metadata.SEODescription = firstNonEmpty(p.Metadata.SEODescription, wire.Meta.Description)
		p.Metadata.FocusKeyword = firstNonEmpty(p.Metadata.FocusKeyword, wire.Meta.FocusKeyword)
	}
	return nil
}

// Validate reports every structural problem with the plan.
func (p ContentPlan) Validate() []string {
	var reasons []string
	if p.ImagePlans == nil {
		return append(reasons, "image_plans is missing")
	}
	if len(p.ImagePlans) == 0 {
		return append(reasons, "image_plans is empty")
	}
	for idx, item := range p.ImagePlans {
		switch item.Type {
		case ImageTypeFeatured, ImageTypeContent:
		default:
			reasons = append(reasons, fmt.Sprintf("image_plans[%d].type %q is not featured or content", idx, item.Type))
		}
		if strings.TrimSpace(item.Prompt) == "" {
			reasons = append(reasons, fmt.Sprintf("image_plans[%d].prompt is empty", idx))
		}
		if strings.TrimSpace(item.AltText) == "" {
			reasons = append(reasons, fmt.Sprintf("image_plans[%d].alt_text is empty", idx))
		}
		if strings.TrimSpace(item.PlacementHint) == "" {
			reasons = append(reasons, fmt.Sprintf("image_plans[%d].placement_hint is empty", idx))
		}
	}
	return reasons
}

// GeneratedImage is the raw output of an image generation request. Data is
// set when the provider returns inline bytes instead of a hosted URL.
type GeneratedImage struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"-"`
}

// UploadedAsset is the publishing target's reference to an uploaded image.
type UploadedAsset struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ResolvedImage is a plan item that was both generated and uploaded.
type ResolvedImage struct {
	ImagePlanItem
	RawAssetURL       string `json:"raw_asset_url"`
	PublishedAssetID  string `json:"published_asset_id"`
	PublishedAssetURL string `json:"published_asset_url"`
}

// Complete reports whether the image may be embedded in body content.
func (r ResolvedImage) Complete() bool {
	return strings.TrimSpace(r.PublishedAssetID) != "" && strings.TrimSpace(r.PublishedAssetURL) != ""
}

// ImageFailure records why a plan item did not resolve.
type ImageFailure struct {
	Index int           `json:"index"`
	Item  ImagePlanItem `json:"item"`
	Step  string        `json:"step"`
	Error string        `json:"error"`
}

// ImageResolution is the output of the image stage.
type ImageResolution struct {
	Images          []ResolvedImage `json:"images"`
	Failures        []ImageFailure  `json:"failures,omitempty"`
	FeaturedMissing bool            `json:"featured_missing"`
}

// Featured returns the resolved featured image, if any.
func (r ImageResolution) Featured() (ResolvedImage, bool) {
	for _, img := range r.Images {
		if img.Type == ImageTypeFeatured && img.Complete() {
			return img, true
		}
	}
	return ResolvedImage{}, false
}

// BodyMetadata is the metadata block of a generated body.
type BodyMetadata struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	FocusKeyword string `json:"focus_keyword"`
}

// ContentBody is the full article produced by the content stage.
type ContentBody struct {
	Title    string       `json:"title"`
	Slug     string       `json:"slug"`
	Metadata BodyMetadata `json:"meta"`
	HTML     string       `json:"html"`
}

// UnmarshalJSON accepts the legacy {content: {html}} layout.
func (b *ContentBody) UnmarshalJSON(data []byte) error {
	type plain ContentBody
	var wire struct {
		plain
		Content *struct {
			HTML string `json:"html"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*b = ContentBody(wire.plain)
	if b.HTML == "" && wire.Content != nil {
		b.HTML = wire.Content.HTML
	}
	return nil
}

// Validate reports missing required fields and image URLs absent from the html.
func (b ContentBody) Validate(images []ResolvedImage) []string {
	var reasons []string
	if strings.TrimSpace(b.Title) == "" {
		reasons = append(reasons, "title is missing")
	}
	if strings.TrimSpace(b.Metadata.Title) == "" {
		reasons = append(reasons, "meta.title is missing")
	}
	if strings.TrimSpace(b.HTML) == "" {
		reasons = append(reasons, "content.html is missing")
	}
	for _, img := range images {
		if !img.Complete() {
			continue
		}
		if b.HTML != "" && !strings.Contains(b.HTML, img.PublishedAssetURL) {
			reasons = append(reasons, fmt.Sprintf("html does not reference image %s", img.PublishedAssetURL))
		}
	}
	return reasons
}

// PostPackage is the publish-ready composition persisted before publishing.
type PostPackage struct {
	Keyword         string          `json:"keyword"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	Metadata        BodyMetadata    `json:"meta"`
	HTML            string          `json:"html"`
	Excerpt         string          `json:"excerpt,omitempty"`
	Images          []ResolvedImage `json:"images"`
	FeaturedMissing bool            `json:"featured_missing"`
	ComposedAt      time.Time       `json:"composed_at"`
}

// UnmarshalJSON accepts the legacy {content: {html}} layout.
func (p *PostPackage) UnmarshalJSON(data []byte) error {
	type plain PostPackage
	var wire struct {
		plain
		Content *struct {
			HTML string `json:"html"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = PostPackage(wire.plain)
	if p.HTML == "" && wire.Content != nil {
		p.HTML = wire.Content.HTML
	}
	return nil
}

// Validate reports whether the package can be published.
func (p PostPackage) Validate() []string {
	var reasons []string
	if strings.TrimSpace(p.Title) == "" {
		reasons = append(reasons, "title is missing")
	}
	if strings.TrimSpace(p.HTML) == "" {
		reasons = append(reasons, "html is missing")
	}
	return reasons
}

// PublishedPost identifies the created remote post.
type PublishedPost struct {
	RemoteID  string    `json:"remote_id"`
	RemoteURL string    `json:"remote_url"`
	CreatedAt time.Time `json:"created_at"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
