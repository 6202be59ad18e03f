package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wiredberlin/boxoffice/internal/metrics"
	"github.com/wiredberlin/boxoffice/internal/signature"
)

type Invalidator interface {
	InvalidateContent(ctx context.Context, docType, slug string, paths []string) error
}

type Publisher interface {
	PublishContentChanged(ctx context.Context, docType, slug string, paths []string) error
}

type Config struct {
	WebhookSecret string
	Locales       []string
}

type Service struct {
	cache  Invalidator
	pub    Publisher
	logger *slog.Logger
	cfg    Config
}

func New(cache Invalidator, pub Publisher, logger *slog.Logger, cfg Config) *Service {
	if len(cfg.Locales) == 0 {
		cfg.Locales = []string{"de", "en"}
	}

	return &Service{cache: cache, pub: pub, logger: logger, cfg: cfg}
}

type Result struct {
	Revalidated bool     `json:"revalidated"`
	DocType     string   `json:"type"`
	Slug        string   `json:"slug,omitempty"`
	Paths       []string `json:"paths"`
}

type notification struct {
	UnderscoreType string          `json:"_type"`
	Type           string          `json:"type"`
	Slug           json.RawMessage `json:"slug"`
}

// HandleWebhook verifies a CMS publish notification and drops the cached
// renders of the document's public pages.
//
// Returns:
//   - error: content.ErrInvalidSignature if the signature does not verify.
//   - error: content.ErrInvalidPayload if the body names no document type.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, sig string) (*Result, error) {
	const op = "service.content.HandleWebhook"

	if err := signature.Verify(s.cfg.WebhookSecret, body, sig); err != nil {
		metrics.Webhook("cms", "invalid_signature")
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidSignature, err)
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		metrics.Webhook("cms", "invalid_payload")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPayload)
	}

	docType := n.UnderscoreType
	if docType == "" {
		docType = n.Type
	}

	if docType == "" {
		metrics.Webhook("cms", "invalid_payload")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPayload)
	}

	res, err := s.Revalidate(ctx, docType, parseSlug(n.Slug))
	if err != nil {
		metrics.Webhook("cms", "error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.Webhook("cms", "revalidated")

	return res, nil
}

// Revalidate drops cached renders and the cached document, then tells
// other instances. Admin writes call it directly.
func (s *Service) Revalidate(ctx context.Context, docType, slug string) (*Result, error) {
	const op = "service.content.Revalidate"

	paths := PathsFor(docType, slug, s.cfg.Locales)

	if err := s.cache.InvalidateContent(ctx, docType, slug, paths); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.pub.PublishContentChanged(ctx, docType, slug, paths); err != nil {
		s.logger.Warn("content change publish failed", "op", op, "type", docType, "slug", slug, "error", err)
	}

	s.logger.Info("content revalidated", "type", docType, "slug", slug, "paths", len(paths))

	return &Result{Revalidated: true, DocType: docType, Slug: slug, Paths: paths}, nil
}

// PathsFor lists the public paths that render a document, unprefixed and
// under every locale prefix.
func PathsFor(docType, slug string, locales []string) []string {
	var base []string

	switch docType {
	case "event":
		base = []string{"/", "/events"}
		if slug != "" {
			base = append(base, "/events/"+slug)
		}
	case "artist":
		base = []string{"/artists"}
		if slug != "" {
			base = append(base, "/artists/"+slug)
		}
	case "release":
		base = []string{"/releases"}
		if slug != "" {
			base = append(base, "/releases/"+slug)
		}
	case "page":
		if slug != "" {
			base = []string{"/" + slug}
		} else {
			base = []string{"/"}
		}
	case "gallery":
		base = []string{"/gallery"}
	default:
		base = []string{"/"}
	}

	seen := make(map[string]bool)
	out := make([]string, 0, len(base)*(len(locales)+1))

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range base {
		add(p)
	}

	for _, loc := range locales {
		for _, p := range base {
			if p == "/" {
				add("/" + loc)
			} else {
				add("/" + loc + p)
			}
		}
	}

	return out
}

// parseSlug accepts a plain string or a {current} slug object.
func parseSlug(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.Trim(strings.TrimSpace(s), "/")
	}

	var obj struct {
		Current string `json:"current"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.Trim(strings.TrimSpace(obj.Current), "/")
	}

	return ""
}
