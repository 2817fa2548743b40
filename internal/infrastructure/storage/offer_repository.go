package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"DealScanner/internal/domain"
	"DealScanner/internal/ports"
)

var offerColumns = []string{
	"id", "dedup_key", "canonical_url", "title", "normalized_title", "store",
	"source_name", "product_url", "image_url", "price", "original_price",
	"affiliate_url", "resolution_method", "status", "blocked_reason",
	"publish_attempts", "discount_percent", "observed_at", "created_at",
	"updated_at", "published_at",
}

// OfferRepository persists offers in Postgres or SQLite.
type OfferRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ ports.OfferRepository = (*OfferRepository)(nil)

// NewOfferRepository wires a sql.DB implementation.
func NewOfferRepository(db *sql.DB, dialect Dialect) *OfferRepository {
	return &OfferRepository{db: db, dialect: dialect, now: time.Now}
}

// ExistingKeys returns the dedup keys that are already stored.
func (r *OfferRepository) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	if r.db == nil || len(keys) == 0 {
		return map[string]bool{}, nil
	}

	q := r.dialect.builder().Select("dedup_key").From("offers")
	if r.dialect == Postgres {
		q = q.Where("dedup_key = ANY(?)", pq.StringArray(keys))
	} else {
		q = q.Where(sq.Eq{"dedup_key": keys})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing keys: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan key: %w", err)
		}
		result[key] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SaveQueued inserts a resolved offer into the publish queue. inserted is
// false when the dedup key or canonical URL is already stored.
func (r *OfferRepository) SaveQueued(ctx context.Context, offer domain.ResolvedOffer) (bool, error) {
	if r.db == nil {
		return false, nil
	}

	now := r.now().UTC()
	var discount decimal.NullDecimal
	if d, ok := offer.Discount(); ok {
		discount = decimal.NewNullDecimal(d)
	}
	observed := offer.ObservedAt
	if observed.IsZero() {
		observed = now
	}

	query, args, err := r.dialect.builder().
		Insert("offers").
		Columns(
			"dedup_key", "canonical_url", "title", "normalized_title", "store",
			"source_name", "product_url", "image_url", "price", "original_price",
			"affiliate_url", "resolution_method", "status", "discount_percent",
			"observed_at", "created_at", "updated_at",
		).
		Values(
			offer.DedupKey, offer.CanonicalURL, offer.Title, offer.NormalizedTitle, offer.Store,
			offer.SourceName, offer.ProductURL, offer.ImageURL, offer.Price, offer.OriginalPrice,
			offer.AffiliateURL, string(offer.Method), string(domain.OfferQueued), discount,
			observed.UTC(), now, now,
		).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert offer: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert offer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert offer rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListQueued returns the oldest queued offers first.
func (r *OfferRepository) ListQueued(ctx context.Context, limit int) ([]domain.StoredOffer, error) {
	if r.db == nil {
		return nil, nil
	}

	q := r.dialect.builder().
		Select(offerColumns...).
		From("offers").
		Where(sq.Eq{"status": string(domain.OfferQueued)}).
		OrderBy("created_at", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list queued: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query queued: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredOffer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanOffer(rows *sql.Rows) (domain.StoredOffer, error) {
	var (
		o           domain.StoredOffer
		method      string
		status      string
		reason      string
		publishedAt sql.NullTime
	)
	err := rows.Scan(
		&o.ID, &o.Offer.DedupKey, &o.Offer.CanonicalURL, &o.Offer.Title, &o.Offer.NormalizedTitle, &o.Offer.Store,
		&o.Offer.SourceName, &o.Offer.ProductURL, &o.Offer.ImageURL, &o.Offer.Price, &o.Offer.OriginalPrice,
		&o.Offer.AffiliateURL, &method, &status, &reason,
		&o.PublishAttempts, &o.DiscountPercent, &o.Offer.ObservedAt, &o.CreatedAt,
		&o.UpdatedAt, &publishedAt,
	)
	if err != nil {
		return domain.StoredOffer{}, fmt.Errorf("scan offer: %w", err)
	}
	o.Offer.Method = domain.ResolutionMethod(method)
	o.Status = domain.OfferStatus(status)
	o.BlockedReason = domain.BlockedReason(reason)
	if publishedAt.Valid {
		t := publishedAt.Time
		o.PublishedAt = &t
	}
	return o, nil
}

// MarkPublished moves an offer out of the queue after a successful publish.
func (r *OfferRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	return r.update(ctx, "mark published", r.dialect.builder().
		Update("offers").
		Set("status", string(domain.OfferPublished)).
		Set("published_at", at.UTC()).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

// MarkBlocked records a failed validation.
func (r *OfferRepository) MarkBlocked(ctx context.Context, id int64, reason domain.BlockedReason, at time.Time) error {
	return r.update(ctx, "mark blocked", r.dialect.builder().
		Update("offers").
		Set("status", string(domain.OfferBlocked)).
		Set("blocked_reason", string(reason)).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

// RecordPublishFailure keeps the offer queued and counts the attempt.
func (r *OfferRepository) RecordPublishFailure(ctx context.Context, id int64, at time.Time) error {
	return r.update(ctx, "record publish failure", r.dialect.builder().
		Update("offers").
		Set("publish_attempts", sq.Expr("publish_attempts + 1")).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

// UpdateAffiliate stores a late-minted affiliate link.
func (r *OfferRepository) UpdateAffiliate(ctx context.Context, id int64, affiliateURL string, at time.Time) error {
	return r.update(ctx, "update affiliate", r.dialect.builder().
		Update("offers").
		Set("affiliate_url", affiliateURL).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}))
}

func (r *OfferRepository) update(ctx context.Context, op string, b sq.UpdateBuilder) error {
	if r.db == nil {
		return nil
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FillDiscounts computes discount_percent for offers that have both prices
// and no discount yet.
func (r *OfferRepository) FillDiscounts(ctx context.Context, at time.Time) (int, error) {
	if r.db == nil {
		return 0, nil
	}

	query, args, err := r.dialect.builder().
		Select("id", "price", "original_price").
		From("offers").
		Where(sq.And{
			sq.Eq{"discount_percent": nil},
			sq.NotEq{"price": nil},
			sq.NotEq{"original_price": nil},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build discount candidates: %w", err)
	}

	type candidate struct {
		id       int64
		discount decimal.Decimal
	}
	var candidates []candidate

	// rows are drained before updating: sqlite runs on a single connection
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query discount candidates: %w", err)
	}
	for rows.Next() {
		var (
			id  int64
			raw domain.RawOffer
		)
		if err := rows.Scan(&id, &raw.Price, &raw.OriginalPrice); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan discount candidate: %w", err)
		}
		if d, ok := raw.Discount(); ok {
			candidates = append(candidates, candidate{id: id, discount: d})
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("rows iteration: %w", err)
	}
	_ = rows.Close()

	for _, c := range candidates {
		err := r.update(ctx, "fill discount", r.dialect.builder().
			Update("offers").
			Set("discount_percent", decimal.NewNullDecimal(c.discount)).
			Set("updated_at", at.UTC()).
			Where(sq.Eq{"id": c.id}))
		if err != nil {
			return 0, err
		}
	}
	return len(candidates), nil
}

// RefreshAggregates recomputes per-store price statistics.
func (r *OfferRepository) RefreshAggregates(ctx context.Context, at time.Time) ([]domain.PriceAggregate, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := r.dialect.builder().
		Select("store", "price").
		From("offers").
		Where(sq.NotEq{"price": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build aggregate source: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	byStore := map[string][]decimal.Decimal{}
	for rows.Next() {
		var (
			store string
			price decimal.NullDecimal
		)
		if err := rows.Scan(&store, &price); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan price: %w", err)
		}
		if price.Valid {
			byStore[store] = append(byStore[store], price.Decimal)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	_ = rows.Close()

	aggregates := make([]domain.PriceAggregate, 0, len(byStore))
	for store, prices := range byStore {
		aggregates = append(aggregates, aggregate(store, prices, at.UTC()))
	}
	sort.Slice(aggregates, func(i, j int) bool { return aggregates[i].Store < aggregates[j].Store })

	for _, agg := range aggregates {
		query, args, err := r.dialect.builder().
			Insert("price_aggregates").
			Columns("store", "offer_count", "min_price", "max_price", "avg_price", "updated_at").
			Values(agg.Store, agg.Count, agg.Min, agg.Max, agg.Avg, agg.UpdatedAt).
			Suffix("ON CONFLICT (store) DO UPDATE SET " +
				"offer_count = excluded.offer_count, min_price = excluded.min_price, " +
				"max_price = excluded.max_price, avg_price = excluded.avg_price, updated_at = excluded.updated_at").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build upsert aggregate: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("upsert aggregate %s: %w", agg.Store, err)
		}
	}
	return aggregates, nil
}

func aggregate(store string, prices []decimal.Decimal, at time.Time) domain.PriceAggregate {
	agg := domain.PriceAggregate{
		Store:     store,
		Count:     len(prices),
		Min:       decimal.Min(prices[0], prices[1:]...),
		Max:       decimal.Max(prices[0], prices[1:]...),
		Avg:       decimal.Avg(prices[0], prices[1:]...).Round(2),
		UpdatedAt: at,
	}
	return agg
}

// DeleteOlderThan removes published and blocked offers created before cutoff.
func (r *OfferRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.db == nil {
		return 0, nil
	}

	query, args, err := r.dialect.builder().
		Delete("offers").
		Where(sq.Lt{"created_at": cutoff.UTC()}).
		Where(sq.NotEq{"status": string(domain.OfferQueued)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete old offers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	return n, nil
}

// Ping checks that the database is reachable.
func (r *OfferRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("database is not configured")
	}
	return r.db.PingContext(ctx)
}
