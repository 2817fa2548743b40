package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DealScanner/internal/domain"
)

func resolvedOffer(key, canonicalURL string) domain.ResolvedOffer {
	return domain.ResolvedOffer{
		CanonicalOffer: domain.CanonicalOffer{
			RawOffer: domain.RawOffer{
				Title:         "Fone JBL Tune",
				Store:         "kabum",
				Price:         decimal.NewNullDecimal(decimal.RequireFromString("150.00")),
				OriginalPrice: decimal.NewNullDecimal(decimal.RequireFromString("200.00")),
				ProductURL:    canonicalURL + "?utm_source=x",
				SourceName:    "kabum-ofertas",
				ObservedAt:    time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
			},
			NormalizedTitle: "fone jbl tune",
			CanonicalURL:    canonicalURL,
			DedupKey:        key,
		},
		AffiliateURL: "https://www.awin1.com/cread.php?awinmid=17729&awinaffid=2370719&ued=x",
		Method:       domain.MethodNetworkDeeplink,
	}
}

func TestOfferRepository_ExistingKeysPostgres(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT dedup_key FROM offers WHERE dedup_key = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"dedup_key"}).AddRow("a"))

	repo := NewOfferRepository(db, Postgres)
	got, err := repo.ExistingKeys(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_ExistingKeysEmptyInput(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	got, err := NewOfferRepository(db, Postgres).ExistingKeys(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_SaveQueuedConflictIsNoop(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO offers .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := NewOfferRepository(db, Postgres).SaveQueued(context.Background(), resolvedOffer("k", "https://www.kabum.com.br/produto/1"))

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_MarkBlocked(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE offers SET status = \$1, blocked_reason = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("blocked", "raw_store_url", at, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewOfferRepository(db, Postgres).MarkBlocked(context.Background(), 7, domain.ReasonRawStoreURL, at)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_RecordPublishFailure(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE offers SET publish_attempts = publish_attempts \+ 1, updated_at = \$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewOfferRepository(db, Postgres).RecordPublishFailure(context.Background(), 3, time.Now())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepository_NilDB(t *testing.T) {
	t.Parallel()

	repo := NewOfferRepository(nil, Postgres)
	inserted, err := repo.SaveQueued(context.Background(), resolvedOffer("k", "u"))
	assert.NoError(t, err)
	assert.False(t, inserted)
	assert.Error(t, repo.Ping(context.Background()))
}
