package postgres

import (
	"context"

	"github.com/wiredberlin/boxoffice/internal/domain"
)

type NewsletterRepo struct {
	pool Pool
	db   DB
}

func (r *NewsletterRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Subscribe inserts the address once. It reports whether a new row was created.
func (r *NewsletterRepo) Subscribe(ctx context.Context, s domain.Subscriber) (bool, error) {
	const op = "postgres.NewsletterRepo.Subscribe"

	tag, err := r.handle().Exec(ctx,
		`INSERT INTO newsletter_subscribers(email, locale, source)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO NOTHING`,
		s.Email, s.Locale, s.Source,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}
