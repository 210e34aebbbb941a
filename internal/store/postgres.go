package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const maxTxAttempts = 3

// Postgres implements Store on a pgx pool. Units of work run at READ
// COMMITTED with explicit row locks and are retried on serialization
// failures, deadlocks and unique violations from concurrent get-or-create.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = p.runTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func (p *Postgres) runTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

func (p *Postgres) PendingOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := p.db.Query(ctx, `SELECT id, topic, key, payload, status, attempts, next_attempt_at, last_error, reference, created_at, updated_at
        FROM outbox_messages WHERE status = $1 AND next_attempt_at <= $2
        ORDER BY created_at LIMIT $3`, OutboxPending, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &m.Status, &m.Attempts, &m.NextAttemptAt,
			&m.LastError, &m.Reference, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateOutbox(ctx context.Context, m OutboxMessage) error {
	cmd, err := p.db.Exec(ctx, `UPDATE outbox_messages SET status = $2, attempts = $3, next_attempt_at = $4,
        last_error = $5, reference = $6, updated_at = $7 WHERE id = $1`,
		m.ID, m.Status, m.Attempts, m.NextAttemptAt.UTC(), m.LastError, m.Reference, m.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affected(cmd pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const walletColumns = `id, kind, owner_id, balance, external_address, created_at, updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.Kind, &w.OwnerID, &w.Balance, &w.ExternalAddress, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (t *pgTx) GetWallet(ctx context.Context, id string, lock bool) (Wallet, error) {
	w, err := scanWallet(t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`+forUpdate(lock), id))
	return w, notFound(err)
}

func (t *pgTx) InsertWallet(ctx context.Context, w Wallet) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.Kind, w.OwnerID, w.Balance, w.ExternalAddress, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	return err
}

func (t *pgTx) UpdateWallet(ctx context.Context, w Wallet) error {
	return affected(t.tx.Exec(ctx, `UPDATE wallets SET balance = $2, external_address = $3, updated_at = $4 WHERE id = $1`,
		w.ID, w.Balance, w.ExternalAddress, w.UpdatedAt.UTC()))
}

func (t *pgTx) ListWallets(ctx context.Context, kind WalletKind) ([]Wallet, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE $1 = '' OR kind = $1 ORDER BY id`, kind)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWallet)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertLedgerTransaction(ctx context.Context, lt LedgerTransaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO ledger_transactions (id, type, from_wallet, to_wallet, amount, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lt.ID, lt.Type, lt.FromWallet, lt.ToWallet, lt.Amount, lt.Description, lt.CreatedAt.UTC())
	return err
}

func (t *pgTx) ListLedgerTransactions(ctx context.Context, walletID string, limit int) ([]LedgerTransaction, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, type, from_wallet, to_wallet, amount, description, created_at
        FROM ledger_transactions WHERE $1 = '' OR from_wallet = $1 OR to_wallet = $1
        ORDER BY created_at DESC, id DESC LIMIT $2`, walletID, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (LedgerTransaction, error) {
		var lt LedgerTransaction
		err := row.Scan(&lt.ID, &lt.Type, &lt.FromWallet, &lt.ToWallet, &lt.Amount, &lt.Description, &lt.CreatedAt)
		return lt, err
	})
}

func (t *pgTx) LedgerFlow(ctx context.Context, ref string, prefix bool) (LedgerFlow, error) {
	var f LedgerFlow
	err := t.tx.QueryRow(ctx, `WITH matched AS (
            SELECT amount,
                CASE WHEN $2 THEN starts_with(to_wallet, $1) ELSE to_wallet = $1 END AS inbound,
                CASE WHEN $2 THEN starts_with(from_wallet, $1) ELSE from_wallet = $1 END AS outbound
            FROM ledger_transactions)
        SELECT COALESCE(SUM(amount) FILTER (WHERE inbound), 0),
               COALESCE(SUM(amount) FILTER (WHERE outbound), 0)
        FROM matched`, ref, prefix).Scan(&f.In, &f.Out)
	return f, err
}

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Name, &m.BasePrice, &m.Tradeable)
	return m, err
}

func (t *pgTx) GetMaterial(ctx context.Context, id string) (Material, error) {
	m, err := scanMaterial(t.tx.QueryRow(ctx, `SELECT id, name, base_price, tradeable FROM materials WHERE id = $1`, id))
	return m, notFound(err)
}

func (t *pgTx) InsertMaterial(ctx context.Context, m Material) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO materials (id, name, base_price, tradeable) VALUES ($1, $2, $3, $4)`,
		m.ID, m.Name, m.BasePrice, m.Tradeable)
	return err
}

func (t *pgTx) UpdateMaterial(ctx context.Context, m Material) error {
	return affected(t.tx.Exec(ctx, `UPDATE materials SET name = $2, base_price = $3, tradeable = $4 WHERE id = $1`,
		m.ID, m.Name, m.BasePrice, m.Tradeable))
}

func (t *pgTx) ListMaterials(ctx context.Context) ([]Material, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name, base_price, tradeable FROM materials ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanMaterial)
}

func (t *pgTx) MaterialQuantity(ctx context.Context, characterID, materialID string) (int64, error) {
	var q int64
	err := t.tx.QueryRow(ctx, `SELECT quantity FROM player_materials WHERE character_id = $1 AND material_id = $2 FOR UPDATE`,
		characterID, materialID).Scan(&q)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return q, err
}

// SetMaterialQuantity updates the stack in place and falls back to an insert
// when no row exists yet.
func (t *pgTx) SetMaterialQuantity(ctx context.Context, characterID, materialID string, quantity int64) error {
	if quantity == 0 {
		_, err := t.tx.Exec(ctx, `DELETE FROM player_materials WHERE character_id = $1 AND material_id = $2`, characterID, materialID)
		return err
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE player_materials SET quantity = $3 WHERE character_id = $1 AND material_id = $2`,
		characterID, materialID, quantity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO player_materials (character_id, material_id, quantity) VALUES ($1, $2, $3)`,
		characterID, materialID, quantity)
	return err
}

func (t *pgTx) ListStacks(ctx context.Context, characterID string) ([]MaterialStack, error) {
	rows, err := t.tx.Query(ctx, `SELECT character_id, material_id, quantity FROM player_materials
        WHERE character_id = $1 ORDER BY material_id`, characterID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (MaterialStack, error) {
		var s MaterialStack
		err := row.Scan(&s.CharacterID, &s.MaterialID, &s.Quantity)
		return s, err
	})
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Value, &it.CreatedAt)
	return it, err
}

func (t *pgTx) GetItem(ctx context.Context, id string, lock bool) (Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT id, owner_id, name, value, created_at FROM items WHERE id = $1`+forUpdate(lock), id))
	return it, notFound(err)
}

func (t *pgTx) InsertItem(ctx context.Context, it Item) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO items (id, owner_id, name, value, created_at) VALUES ($1, $2, $3, $4, $5)`,
		it.ID, it.OwnerID, it.Name, it.Value, it.CreatedAt.UTC())
	return err
}

func (t *pgTx) UpdateItem(ctx context.Context, it Item) error {
	return affected(t.tx.Exec(ctx, `UPDATE items SET owner_id = $2, name = $3, value = $4 WHERE id = $1`,
		it.ID, it.OwnerID, it.Name, it.Value))
}

func (t *pgTx) ListItems(ctx context.Context, ownerID string) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, owner_id, name, value, created_at FROM items WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanItem)
}

const accountColumns = `owner_type, owner_id, deposited_balance, loan_balance, loan_interest_rate_daily,
    loan_issued_at, loan_due_date, enforcement_count, last_enforcement, created_at, updated_at`

func scanAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.OwnerType, &a.OwnerID, &a.DepositedBalance, &a.LoanBalance, &a.LoanInterestRateDaily,
		&a.LoanIssuedAt, &a.LoanDueDate, &a.EnforcementCount, &a.LastEnforcement, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (t *pgTx) GetBankAccount(ctx context.Context, ownerType, ownerID string, lock bool) (BankAccount, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM bank_accounts
        WHERE owner_type = $1 AND owner_id = $2`+forUpdate(lock), ownerType, ownerID))
	return a, notFound(err)
}

func (t *pgTx) InsertBankAccount(ctx context.Context, a BankAccount) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO bank_accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.OwnerType, a.OwnerID, a.DepositedBalance, a.LoanBalance, a.LoanInterestRateDaily,
		a.LoanIssuedAt, a.LoanDueDate, a.EnforcementCount, a.LastEnforcement, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return err
}

func (t *pgTx) UpdateBankAccount(ctx context.Context, a BankAccount) error {
	return affected(t.tx.Exec(ctx, `UPDATE bank_accounts SET deposited_balance = $3, loan_balance = $4,
        loan_interest_rate_daily = $5, loan_issued_at = $6, loan_due_date = $7, enforcement_count = $8,
        last_enforcement = $9, updated_at = $10 WHERE owner_type = $1 AND owner_id = $2`,
		a.OwnerType, a.OwnerID, a.DepositedBalance, a.LoanBalance, a.LoanInterestRateDaily,
		a.LoanIssuedAt, a.LoanDueDate, a.EnforcementCount, a.LastEnforcement, a.UpdatedAt.UTC()))
}

func (t *pgTx) ListOverdueLoans(ctx context.Context, now time.Time) ([]BankAccount, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+accountColumns+` FROM bank_accounts
        WHERE loan_balance > 0 AND loan_due_date < $1 ORDER BY owner_id`, now.UTC())
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAccount)
}

const (
	sideOffering = "offering"
	sideWanting  = "wanting"
)

const offerColumns = `id, from_id, to_id, offering_currency, wanting_currency, status, expires_at, created_at, resolved_at, resolved_by`

func scanOffer(row pgx.Row) (TradeOffer, error) {
	var o TradeOffer
	err := row.Scan(&o.ID, &o.FromID, &o.ToID, &o.OfferingCurrency, &o.WantingCurrency, &o.Status,
		&o.ExpiresAt, &o.CreatedAt, &o.ResolvedAt, &o.ResolvedBy)
	return o, err
}

func (t *pgTx) InsertOffer(ctx context.Context, o TradeOffer) error {
	if _, err := t.tx.Exec(ctx, `INSERT INTO trade_offers (`+offerColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.FromID, o.ToID, o.OfferingCurrency, o.WantingCurrency, o.Status,
		o.ExpiresAt.UTC(), o.CreatedAt.UTC(), o.ResolvedAt, o.ResolvedBy); err != nil {
		return err
	}
	if err := t.insertLines(ctx, o.ID, sideOffering, o.OfferingMaterials); err != nil {
		return err
	}
	return t.insertLines(ctx, o.ID, sideWanting, o.WantingMaterials)
}

func (t *pgTx) insertLines(ctx context.Context, offerID, side string, lines []MaterialLine) error {
	for i, l := range lines {
		if _, err := t.tx.Exec(ctx, `INSERT INTO trade_offer_lines (offer_id, side, position, material_id, quantity)
            VALUES ($1, $2, $3, $4, $5)`, offerID, side, i, l.MaterialID, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) loadLines(ctx context.Context, o *TradeOffer) error {
	rows, err := t.tx.Query(ctx, `SELECT side, material_id, quantity FROM trade_offer_lines
        WHERE offer_id = $1 ORDER BY side, position`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var side string
		var l MaterialLine
		if err := rows.Scan(&side, &l.MaterialID, &l.Quantity); err != nil {
			return err
		}
		if side == sideOffering {
			o.OfferingMaterials = append(o.OfferingMaterials, l)
		} else {
			o.WantingMaterials = append(o.WantingMaterials, l)
		}
	}
	return rows.Err()
}

func (t *pgTx) GetOffer(ctx context.Context, id string, lock bool) (TradeOffer, error) {
	o, err := scanOffer(t.tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM trade_offers WHERE id = $1`+forUpdate(lock), id))
	if err != nil {
		return TradeOffer{}, notFound(err)
	}
	if err := t.loadLines(ctx, &o); err != nil {
		return TradeOffer{}, err
	}
	return o, nil
}

// UpdateOffer persists status changes. Offer lines are immutable once written.
func (t *pgTx) UpdateOffer(ctx context.Context, o TradeOffer) error {
	return affected(t.tx.Exec(ctx, `UPDATE trade_offers SET status = $2, resolved_at = $3, resolved_by = $4 WHERE id = $1`,
		o.ID, o.Status, o.ResolvedAt, o.ResolvedBy))
}

func (t *pgTx) ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return t.ids(ctx, `SELECT id FROM trade_offers WHERE status = $1 AND expires_at <= $2 ORDER BY expires_at LIMIT $3`,
		OfferPending, now.UTC(), limitOrAll(limit))
}

func (t *pgTx) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return 1 << 30
	}
	return limit
}

func (t *pgTx) ListOffers(ctx context.Context, f OfferFilter) ([]TradeOffer, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+offerColumns+` FROM trade_offers
        WHERE ($1 = '' OR status = $1) AND ($2 = '' OR from_id = $2 OR to_id = $2)
        ORDER BY created_at DESC`, f.Status, f.ParticipantID)
	if err != nil {
		return nil, err
	}
	offers, err := collect(rows, scanOffer)
	if err != nil {
		return nil, err
	}
	for i := range offers {
		if err := t.loadLines(ctx, &offers[i]); err != nil {
			return nil, err
		}
	}
	return offers, nil
}

const auctionColumns = `id, seller_id, item_type, item_id, quantity, starting_bid, buyout_price, current_bid,
    current_bidder_id, status, ends_at, created_at, resolved_at`

func scanAuction(row pgx.Row) (Auction, error) {
	var a Auction
	err := row.Scan(&a.ID, &a.SellerID, &a.ItemType, &a.ItemID, &a.Quantity, &a.StartingBid, &a.BuyoutPrice,
		&a.CurrentBid, &a.CurrentBidderID, &a.Status, &a.EndsAt, &a.CreatedAt, &a.ResolvedAt)
	return a, err
}

func (t *pgTx) InsertAuction(ctx context.Context, a Auction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO auctions (`+auctionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.SellerID, a.ItemType, a.ItemID, a.Quantity, a.StartingBid, a.BuyoutPrice, a.CurrentBid,
		a.CurrentBidderID, a.Status, a.EndsAt.UTC(), a.CreatedAt.UTC(), a.ResolvedAt)
	return err
}

func (t *pgTx) GetAuction(ctx context.Context, id string, lock bool) (Auction, error) {
	a, err := scanAuction(t.tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`+forUpdate(lock), id))
	return a, notFound(err)
}

func (t *pgTx) UpdateAuction(ctx context.Context, a Auction) error {
	return affected(t.tx.Exec(ctx, `UPDATE auctions SET current_bid = $2, current_bidder_id = $3, status = $4,
        resolved_at = $5 WHERE id = $1`, a.ID, a.CurrentBid, a.CurrentBidderID, a.Status, a.ResolvedAt))
}

func (t *pgTx) InsertBid(ctx context.Context, b AuctionBid) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO auction_bids (id, auction_id, bidder_id, amount, created_at)
        VALUES ($1, $2, $3, $4, $5)`, b.ID, b.AuctionID, b.BidderID, b.Amount, b.CreatedAt.UTC())
	return err
}

func (t *pgTx) ListBids(ctx context.Context, auctionID string) ([]AuctionBid, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, auction_id, bidder_id, amount, created_at FROM auction_bids
        WHERE auction_id = $1 ORDER BY created_at, amount`, auctionID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (AuctionBid, error) {
		var b AuctionBid
		err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt)
		return b, err
	})
}

func (t *pgTx) ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return t.ids(ctx, `SELECT id FROM auctions WHERE status = $1 AND ends_at <= $2 ORDER BY ends_at LIMIT $3`,
		AuctionActive, now.UTC(), limitOrAll(limit))
}

func (t *pgTx) ListActiveAuctions(ctx context.Context, f AuctionFilter) ([]Auction, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+auctionColumns+` FROM auctions
        WHERE status = $1 AND ($2 = '' OR item_type = $2) AND (NOT $3 OR buyout_price IS NOT NULL)
        AND ($4 = '' OR seller_id <> $4) ORDER BY ends_at`,
		AuctionActive, string(f.ItemType), f.BuyoutOnly, f.ExcludeSeller)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAuction)
}

func (t *pgTx) GetCharacterStatus(ctx context.Context, characterID string, lock bool) (CharacterStatus, error) {
	var s CharacterStatus
	err := t.tx.QueryRow(ctx, `SELECT character_id, jailed_until, jail_reason, active_encounter_id, encounter_started_at, updated_at
        FROM character_status WHERE character_id = $1`+forUpdate(lock), characterID).
		Scan(&s.CharacterID, &s.JailedUntil, &s.JailReason, &s.ActiveEncounterID, &s.EncounterStartedAt, &s.UpdatedAt)
	return s, notFound(err)
}

func (t *pgTx) SaveCharacterStatus(ctx context.Context, s CharacterStatus) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE character_status SET jailed_until = $2, jail_reason = $3, active_encounter_id = $4,
        encounter_started_at = $5, updated_at = $6 WHERE character_id = $1`,
		s.CharacterID, s.JailedUntil, s.JailReason, s.ActiveEncounterID, s.EncounterStartedAt, s.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO character_status (character_id, jailed_until, jail_reason, active_encounter_id,
        encounter_started_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.CharacterID, s.JailedUntil, s.JailReason, s.ActiveEncounterID, s.EncounterStartedAt, s.UpdatedAt.UTC())
	return err
}

func (t *pgTx) InsertJobAssignment(ctx context.Context, j JobAssignment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO job_assignments (id, job_id, character_id, employer_wallet, pay, status, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID, j.JobID, j.CharacterID, j.EmployerWallet, j.Pay, j.Status, j.CreatedAt.UTC(), j.CompletedAt)
	return err
}

func (t *pgTx) GetJobAssignment(ctx context.Context, id string, lock bool) (JobAssignment, error) {
	var j JobAssignment
	err := t.tx.QueryRow(ctx, `SELECT id, job_id, character_id, employer_wallet, pay, status, created_at, completed_at
        FROM job_assignments WHERE id = $1`+forUpdate(lock), id).
		Scan(&j.ID, &j.JobID, &j.CharacterID, &j.EmployerWallet, &j.Pay, &j.Status, &j.CreatedAt, &j.CompletedAt)
	return j, notFound(err)
}

func (t *pgTx) UpdateJobAssignment(ctx context.Context, j JobAssignment) error {
	return affected(t.tx.Exec(ctx, `UPDATE job_assignments SET status = $2, completed_at = $3 WHERE id = $1`,
		j.ID, j.Status, j.CompletedAt))
}

func (t *pgTx) InsertOutbox(ctx context.Context, m OutboxMessage) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO outbox_messages (id, topic, key, payload, status, attempts, next_attempt_at,
        last_error, reference, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.Topic, m.Key, m.Payload, m.Status, m.Attempts, m.NextAttemptAt.UTC(), m.LastError, m.Reference,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC())
	return err
}
