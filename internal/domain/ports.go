package domain

import "context"

// KeywordSource is the worklist of keywords awaiting an article.
type KeywordSource interface {
	// Next returns ErrSourceExhausted when no row is pending.
	Next(ctx context.Context) (*KeywordTask, error)
	MarkProcessed(ctx context.Context, locator string, status ProcessStatus, message string) error
	// FindByKeyword returns ErrNotFound when no row matches.
	FindByKeyword(ctx context.Context, keyword string) (*KeywordTask, error)
}

// PromptBundle is one structured generation request.
type PromptBundle struct {
	Name      string
	System    string
	User      string
	JSON      bool
	MaxTokens int
}

// GenerativeClient issues generation requests to an external model.
type GenerativeClient interface {
	GenerateStructured(ctx context.Context, bundle PromptBundle) (string, error)
	GenerateImage(ctx context.Context, prompt, size string) (*GeneratedImage, error)
}

// Publisher creates posts and hosts their image assets.
type Publisher interface {
	UploadAsset(ctx context.Context, image GeneratedImage, filename string) (*UploadedAsset, error)
	CreatePost(ctx context.Context, pkg PostPackage) (*PublishedPost, error)
}
