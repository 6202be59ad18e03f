package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/wiredberlin/boxoffice/internal/cms"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

type Service struct {
	writer cms.Writer
	reval  func(ctx context.Context, docType, slug string) error
	logger *slog.Logger
}

// New builds the admin service. revalidate is called after every
// successful write with the document type and slug.
func New(writer cms.Writer, revalidate func(ctx context.Context, docType, slug string) error, logger *slog.Logger) *Service {
	return &Service{writer: writer, reval: revalidate, logger: logger}
}

const (
	typeArtist = "artist"
	typeEvent  = "event"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type ArtistInput struct {
	Name  string   `json:"name"`
	Slug  string   `json:"slug"`
	Bio   string   `json:"bio"`
	Links []string `json:"links"`
}

func (in ArtistInput) fields(create bool) (map[string]any, error) {
	f := map[string]any{}

	name := strings.TrimSpace(in.Name)
	if create && name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if name != "" {
		f["name"] = name
	}

	if err := putSlug(f, in.Slug, create); err != nil {
		return nil, err
	}

	if in.Bio != "" {
		f["bio"] = in.Bio
	}
	if in.Links != nil {
		f["links"] = in.Links
	}

	if len(f) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}

	return f, nil
}

type EventInput struct {
	Title         string              `json:"title"`
	Slug          string              `json:"slug"`
	Description   string              `json:"description"`
	Venue         string              `json:"venue"`
	Address       string              `json:"address"`
	StartsAt      *time.Time          `json:"startsAt"`
	EndsAt        *time.Time          `json:"endsAt"`
	TicketSource  domain.TicketSource `json:"ticketSource"`
	UpstreamEvent string              `json:"upstreamEvent"`
	CheckInListID int64               `json:"checkInListId"`
}

func (in EventInput) fields(create bool) (map[string]any, error) {
	f := map[string]any{}

	title := strings.TrimSpace(in.Title)
	if create && title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if title != "" {
		f["title"] = title
	}

	if err := putSlug(f, in.Slug, create); err != nil {
		return nil, err
	}

	for k, v := range map[string]string{"description": in.Description, "venue": in.Venue, "address": in.Address} {
		if v != "" {
			f[k] = v
		}
	}

	if in.StartsAt != nil {
		f["startsAt"] = in.StartsAt.UTC().Format(time.RFC3339)
	}
	if in.EndsAt != nil {
		if in.StartsAt != nil && !in.EndsAt.After(*in.StartsAt) {
			return nil, fmt.Errorf("%w: endsAt must be after startsAt", ErrInvalidInput)
		}
		f["endsAt"] = in.EndsAt.UTC().Format(time.RFC3339)
	}

	switch in.TicketSource {
	case "":
	case domain.SourcePretix:
		if create && in.UpstreamEvent == "" {
			return nil, fmt.Errorf("%w: upstreamEvent is required for pretix events", ErrInvalidInput)
		}
		f["ticketSource"] = string(in.TicketSource)
	case domain.SourceCMS:
		f["ticketSource"] = string(in.TicketSource)
	default:
		return nil, fmt.Errorf("%w: unknown ticketSource %q", ErrInvalidInput, in.TicketSource)
	}

	if in.UpstreamEvent != "" {
		f["pretixEvent"] = in.UpstreamEvent
	}
	if in.CheckInListID < 0 {
		return nil, fmt.Errorf("%w: checkInListId must be positive", ErrInvalidInput)
	}
	if in.CheckInListID > 0 {
		f["pretixCheckInList"] = in.CheckInListID
	}

	if len(f) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}

	return f, nil
}

func putSlug(f map[string]any, raw string, create bool) error {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if slug == "" {
		if create {
			return fmt.Errorf("%w: slug is required", ErrInvalidInput)
		}
		return nil
	}
	if !slugRe.MatchString(slug) {
		return fmt.Errorf("%w: slug %q must be lowercase letters, digits and dashes", ErrInvalidInput, raw)
	}
	f["slug"] = slug
	return nil
}

// CreateArtist writes a new artist document and revalidates the artist
// pages.
//
// Returns:
//   - error: admin.ErrInvalidInput if name or slug are missing or malformed.
//   - error: admin.ErrUpstream if the CMS rejects or cannot take the write.
func (s *Service) CreateArtist(ctx context.Context, in ArtistInput) (*cms.Document, error) {
	const op = "service.admin.CreateArtist"
	return s.create(ctx, op, typeArtist, in.fields)
}

func (s *Service) UpdateArtist(ctx context.Context, id string, in ArtistInput) (*cms.Document, error) {
	const op = "service.admin.UpdateArtist"
	return s.update(ctx, op, typeArtist, id, in.fields)
}

func (s *Service) DeleteArtist(ctx context.Context, id string) (*cms.Document, error) {
	const op = "service.admin.DeleteArtist"
	return s.delete(ctx, op, typeArtist, id)
}

// CreateEvent writes a new event document. Events sold through pretix
// must name their upstream event.
//
// Returns:
//   - error: admin.ErrInvalidInput if the input does not describe an event.
//   - error: admin.ErrUpstream if the CMS rejects or cannot take the write.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (*cms.Document, error) {
	const op = "service.admin.CreateEvent"
	return s.create(ctx, op, typeEvent, in.fields)
}

func (s *Service) UpdateEvent(ctx context.Context, id string, in EventInput) (*cms.Document, error) {
	const op = "service.admin.UpdateEvent"
	return s.update(ctx, op, typeEvent, id, in.fields)
}

func (s *Service) DeleteEvent(ctx context.Context, id string) (*cms.Document, error) {
	const op = "service.admin.DeleteEvent"
	return s.delete(ctx, op, typeEvent, id)
}

func (s *Service) create(ctx context.Context, op, docType string, build func(bool) (map[string]any, error)) (*cms.Document, error) {
	fields, err := build(true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	doc, err := s.writer.Create(ctx, docType, fields)
	if err != nil {
		return nil, s.writeErr(op, err)
	}

	s.after(ctx, op, docType, doc, fields)

	return doc, nil
}

func (s *Service) update(ctx context.Context, op, docType, id string, build func(bool) (map[string]any, error)) (*cms.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: %w: id is required", op, ErrInvalidInput)
	}

	fields, err := build(false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	doc, err := s.writer.Update(ctx, id, fields)
	if err != nil {
		return nil, s.writeErr(op, err)
	}

	s.after(ctx, op, docType, doc, fields)

	return doc, nil
}

func (s *Service) delete(ctx context.Context, op, docType, id string) (*cms.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: %w: id is required", op, ErrInvalidInput)
	}

	doc, err := s.writer.Delete(ctx, id)
	if err != nil {
		return nil, s.writeErr(op, err)
	}

	s.after(ctx, op, docType, doc, nil)

	return doc, nil
}

func (s *Service) writeErr(op string, err error) error {
	if errors.Is(err, cms.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// after revalidates the written document. The write already happened, so
// a failed invalidation is logged and left to the cache TTL.
func (s *Service) after(ctx context.Context, op, docType string, doc *cms.Document, fields map[string]any) {
	if doc.Type == "" {
		doc.Type = docType
	}
	if doc.Slug == "" {
		if slug, ok := fields["slug"].(string); ok {
			doc.Slug = slug
		}
	}

	s.logger.Info("cms document written", "op", op, "type", doc.Type, "id", doc.ID, "slug", doc.Slug)

	if s.reval == nil {
		return
	}

	if err := s.reval(ctx, doc.Type, doc.Slug); err != nil {
		s.logger.Warn("revalidation after write failed", "op", op, "type", doc.Type, "slug", doc.Slug, "error", err)
	}
}
