// Package pgstore is the Postgres billing.Store. Row locks taken by reads
// inside WithTx serialize concurrent webhook deliveries and team limit
// changes on the same subscription; partial unique indexes enforce one live
// subscription per user and season and one per remote subscription.
package pgstore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/leaguebilling/pkg/pg"
	"github.com/dmitrymomot/leaguebilling/svc/billing"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ billing.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// WithTx runs fn in a read-committed transaction whose subscription reads
// lock the returned rows.
func (s *Store) WithTx(ctx context.Context, fn func(q billing.Queries) error) error {
	return pg.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(queries{db: tx, lock: true})
	})
}

type queries struct {
	db   querier
	lock bool
}

const subscriptionColumns = `s.id, s.user_id, s.league_season_id, s.customer_ref, s.remote_ref, s.status,
	s.team_limit, s.billed_team_count, s.billing_start_at, s.current_period_end,
	s.remote_sync_pending, s.remote_sync_mode, s.created_at, s.updated_at, s.deleted_at`

func (q queries) forUpdate() string {
	if q.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (q queries) GetUser(ctx context.Context, id int64) (*billing.User, error) {
	var u billing.User
	err := q.db.QueryRow(ctx, `SELECT id, email FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Email)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q queries) GetSeason(ctx context.Context, id int64) (*billing.LeagueSeason, error) {
	var s billing.LeagueSeason
	err := q.db.QueryRow(ctx, `
		SELECT ls.id, ls.league_id, l.name, ls.name, ls.season_start, ls.season_end,
		       ls.subscription_open_at, ls.subscription_close_at, ls.change_deadline
		FROM league_seasons ls
		JOIN leagues l ON l.id = ls.league_id
		WHERE ls.id = $1`, id).Scan(
		&s.ID, &s.LeagueID, &s.LeagueName, &s.Name, &s.SeasonStart, &s.SeasonEnd,
		&s.SubscriptionOpenAt, &s.SubscriptionCloseAt, &s.ChangeDeadline,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSeasonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q queries) GetSeasonProduct(ctx context.Context, seasonID int64) (*billing.SeasonProduct, error) {
	var (
		p     billing.SeasonProduct
		model string
	)
	err := q.db.QueryRow(ctx, `
		SELECT id, league_season_id, price_ref, pricing_model
		FROM season_products WHERE league_season_id = $1`, seasonID).Scan(
		&p.ID, &p.LeagueSeasonID, &p.PriceRef, &model,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSeasonProductMissing
	}
	if err != nil {
		return nil, err
	}
	p.PricingModel = billing.PricingModel(model)
	return &p, nil
}

func (q queries) GetSubscription(ctx context.Context, id int64) (*billing.Subscription, error) {
	return q.oneSubscription(ctx, `s.id = $1`, id)
}

func (q queries) FindSubscription(ctx context.Context, userID, seasonID int64) (*billing.Subscription, error) {
	return q.oneSubscription(ctx, `s.user_id = $1 AND s.league_season_id = $2`, userID, seasonID)
}

func (q queries) FindSubscriptionByRemoteRef(ctx context.Context, remoteRef string) (*billing.Subscription, error) {
	if remoteRef == "" {
		return nil, billing.ErrSubscriptionNotFound
	}
	return q.oneSubscription(ctx, `s.remote_ref = $1`, remoteRef)
}

func (q queries) oneSubscription(ctx context.Context, where string, args ...any) (*billing.Subscription, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions s WHERE `+where+` AND s.deleted_at IS NULL`+q.forUpdate(),
		args...)
	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (q queries) InsertSubscription(ctx context.Context, sub *billing.Subscription) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO subscriptions (
			user_id, league_season_id, customer_ref, remote_ref, status, team_limit,
			billed_team_count, billing_start_at, current_period_end, remote_sync_pending,
			remote_sync_mode, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		sub.UserID, sub.LeagueSeasonID, sub.CustomerRef, sub.RemoteRef, string(sub.Status), sub.TeamLimit,
		sub.BilledTeamCount, sub.BillingStartAt, sub.CurrentPeriodEnd, sub.RemoteSyncPending,
		string(sub.RemoteSyncMode), sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.ID)
	return mapWriteError(err)
}

func (q queries) UpdateSubscription(ctx context.Context, sub *billing.Subscription) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE subscriptions SET
			customer_ref = $2, remote_ref = $3, status = $4, team_limit = $5,
			billed_team_count = $6, billing_start_at = $7, current_period_end = $8,
			remote_sync_pending = $9, remote_sync_mode = $10, updated_at = $11
		WHERE id = $1 AND deleted_at IS NULL`,
		sub.ID, sub.CustomerRef, sub.RemoteRef, string(sub.Status), sub.TeamLimit,
		sub.BilledTeamCount, sub.BillingStartAt, sub.CurrentPeriodEnd,
		sub.RemoteSyncPending, string(sub.RemoteSyncMode), sub.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

func (q queries) InsertTeamChange(ctx context.Context, c *billing.TeamChange) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO team_changes (subscription_id, old_limit, new_limit, actor, reason, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		c.SubscriptionID, c.OldLimit, c.NewLimit, c.Actor, c.Reason, string(c.Mode), c.CreatedAt,
	).Scan(&c.ID)
	if pg.IsForeignKeyViolationError(err) {
		return billing.ErrSubscriptionNotFound
	}
	return err
}

const viewQuery = `SELECT ` + subscriptionColumns + `, l.id, l.name, ls.name
	FROM subscriptions s
	JOIN league_seasons ls ON ls.id = s.league_season_id
	JOIN leagues l ON l.id = ls.league_id
	JOIN users u ON u.id = s.user_id
	WHERE s.deleted_at IS NULL`

func (q queries) GetSubscriptionView(ctx context.Context, id int64) (*billing.SubscriptionView, error) {
	v, err := scanView(q.db.QueryRow(ctx, viewQuery+` AND s.id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (q queries) ListSubscriptions(ctx context.Context, f billing.SubscriptionFilter) ([]billing.SubscriptionView, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(viewQuery)
	if f.UserID != 0 {
		args = append(args, f.UserID)
		sb.WriteString(` AND s.user_id = $` + strconv.Itoa(len(args)))
	}
	if f.LeagueSeasonID != 0 {
		args = append(args, f.LeagueSeasonID)
		sb.WriteString(` AND s.league_season_id = $` + strconv.Itoa(len(args)))
	}
	if email := strings.TrimSpace(f.UserEmail); email != "" {
		args = append(args, email)
		sb.WriteString(` AND lower(u.email) = lower($` + strconv.Itoa(len(args)) + `)`)
	}
	sb.WriteString(` ORDER BY s.id`)

	rows, err := q.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]billing.SubscriptionView, 0)
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (q queries) ListTeamChanges(ctx context.Context, subscriptionID int64) ([]billing.TeamChange, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, subscription_id, old_limit, new_limit, actor, reason, mode, created_at
		FROM team_changes WHERE subscription_id = $1 ORDER BY id`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]billing.TeamChange, 0)
	for rows.Next() {
		var (
			c    billing.TeamChange
			mode string
		)
		if err := rows.Scan(&c.ID, &c.SubscriptionID, &c.OldLimit, &c.NewLimit, &c.Actor, &c.Reason, &mode, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Mode = billing.ChangeMode(mode)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q queries) ListSyncPending(ctx context.Context, limit int) ([]billing.Subscription, error) {
	rows, err := q.db.Query(ctx, `SELECT `+subscriptionColumns+`
		FROM subscriptions s
		WHERE s.remote_sync_pending AND s.deleted_at IS NULL
		ORDER BY s.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]billing.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func scanSubscription(row pgx.Row, extra ...any) (*billing.Subscription, error) {
	var (
		s      billing.Subscription
		status string
		mode   string
	)
	dest := append([]any{
		&s.ID, &s.UserID, &s.LeagueSeasonID, &s.CustomerRef, &s.RemoteRef, &status,
		&s.TeamLimit, &s.BilledTeamCount, &s.BillingStartAt, &s.CurrentPeriodEnd,
		&s.RemoteSyncPending, &mode, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	s.Status = billing.Status(status)
	s.RemoteSyncMode = billing.ChangeMode(mode)
	return &s, nil
}

func scanView(row pgx.Row) (*billing.SubscriptionView, error) {
	var v billing.SubscriptionView
	sub, err := scanSubscription(row, &v.LeagueID, &v.LeagueName, &v.SeasonName)
	if err != nil {
		return nil, err
	}
	v.Subscription = *sub
	return &v, nil
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsDuplicateKeyError(err):
		return errors.Join(billing.ErrDuplicateSubscription, err)
	case pg.IsCheckViolationError(err) && pg.ConstraintName(err) == "subscriptions_team_limit_check":
		return billing.ErrInvalidTeamLimit
	case pg.IsForeignKeyViolationError(err):
		switch pg.ConstraintName(err) {
		case "subscriptions_user_id_fkey":
			return billing.ErrUserNotFound
		case "subscriptions_league_season_id_fkey":
			return billing.ErrSeasonNotFound
		}
	}
	return err
}
