package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wiredberlin/boxoffice/internal/domain"
)

func TestCheckInRepo_Append(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	now := time.Now()
	entry := &domain.CheckInLog{
		Code:        "ABC123",
		EventSlug:   "wired-002",
		Status:      domain.CheckInUsed,
		Message:     "Ticket already redeemed.",
		RawResponse: []byte(`{"status":"error","reason":"already_redeemed"}`),
		ScannedBy:   "staff-1",
	}

	mock.ExpectQuery("INSERT INTO checkin_logs").
		WithArgs("ABC123", "wired-002", "USED", "Ticket already redeemed.", pgxmock.AnyArg(), "staff-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	require.NoError(t, store.CheckIns().Append(context.Background(), entry))

	assert.Equal(t, int64(42), entry.ID)
	assert.Equal(t, now, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckInRepo_Recent(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	now := time.Now()
	mock.ExpectQuery("FROM checkin_logs").
		WithArgs("wired-002", 2).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "code", "event_slug", "status", "message", "raw_response", "scanned_by", "created_at",
		}).
			AddRow(int64(2), "B", "wired-002", "VALID", "Ticket valid.", []byte(nil), "staff-1", now).
			AddRow(int64(1), "A", "wired-002", "ERROR", "Verification failed.", []byte(nil), "staff-1", now.Add(-time.Minute)))

	logs, err := store.CheckIns().Recent(context.Background(), "wired-002", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.CheckInValid, logs[0].Status)
	assert.Equal(t, domain.CheckInError, logs[1].Status)
}

func TestCheckInRepo_AppendWrapsNonJSONResponse(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	entry := &domain.CheckInLog{
		Code:        "ABC123",
		EventSlug:   "wired-002",
		Status:      domain.CheckInInvalid,
		Message:     "Ticket not found.",
		RawResponse: []byte(`<html><body>Not Found</body></html>`),
		ScannedBy:   "staff-1",
	}

	mock.ExpectQuery("INSERT INTO checkin_logs").
		WithArgs("ABC123", "wired-002", "INVALID", "Ticket not found.",
			wrappedBody(`<html><body>Not Found</body></html>`), "staff-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(43), time.Now()))

	require.NoError(t, store.CheckIns().Append(context.Background(), entry))
	assert.Equal(t, int64(43), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// wrappedBody matches a raw_response argument holding want under "body".
type wrappedBody string

func (w wrappedBody) Match(v any) bool {
	b, ok := v.([]byte)
	if !ok || !json.Valid(b) {
		return false
	}

	var got struct {
		Body string `json:"body"`
	}
	return json.Unmarshal(b, &got) == nil && got.Body == string(w)
}
