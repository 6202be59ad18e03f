package newsletter

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"github.com/wiredberlin/boxoffice/internal/domain"
)

type Store interface {
	Subscribe(ctx context.Context, s domain.Subscriber) (bool, error)
}

type Service struct {
	store         Store
	locales       []string
	defaultLocale string
}

func New(store Store, locales []string, defaultLocale string) *Service {
	return &Service{store: store, locales: locales, defaultLocale: defaultLocale}
}

// Subscribe records an address. Subscribing twice is not an error; created
// reports whether the address is new.
//
// Returns:
//   - error: newsletter.ErrInvalidEmail if the address does not parse.
func (s *Service) Subscribe(ctx context.Context, email, locale, source string) (bool, error) {
	const op = "service.newsletter.Subscribe"

	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" || !strings.Contains(addr.Address, ".") {
		return false, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	locale = strings.ToLower(strings.TrimSpace(locale))
	if !slices.Contains(s.locales, locale) {
		locale = s.defaultLocale
	}

	if source == "" {
		source = "website"
	}

	created, err := s.store.Subscribe(ctx, domain.Subscriber{
		Email:  strings.ToLower(addr.Address),
		Locale: locale,
		Source: source,
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return created, nil
}
