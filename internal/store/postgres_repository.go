/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL for donors, the token ledger, pledges and redemptions.
 *
 * @notes
 * - Every balance-changing operation locks the donor row with FOR UPDATE so
 *   that concurrent redemptions for one donor serialize.
 * - The redemption code uniqueness is enforced by the redemptions_code_key
 *   constraint and surfaced as ErrDuplicateCode.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	redemptionColumns = `id, donor_id, code, item_id, item_title, cost, location, suggested_time, reasoning, status, created_at, updated_at`
	pledgeColumns     = `id, donor_id, facility, scheduled_for, status, created_at, updated_at`
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateDonor inserts the donor and its welcome credit in one transaction.
func (r *PostgresRepository) CreateDonor(ctx context.Context, donor *domain.Donor, welcome domain.LedgerEntry) error {
	if donor.ID == uuid.Nil {
		donor.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO donors (id, name, phone_number, blood_type, kin_name, kin_phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, donor.ID, donor.Name, donor.PhoneNumber, donor.BloodType, donor.KinName, donor.KinPhone).Scan(&donor.CreatedAt)
	if err != nil {
		return err
	}

	welcome.DonorID = donor.ID
	if err := insertLedgerEntry(ctx, tx, welcome); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindDonorByID retrieves a donor by ID.
func (r *PostgresRepository) FindDonorByID(ctx context.Context, donorID uuid.UUID) (*domain.Donor, error) {
	var d domain.Donor
	err := r.db.QueryRow(ctx, `
		SELECT id, name, phone_number, blood_type, kin_name, kin_phone, created_at
		FROM donors WHERE id = $1
	`, donorID).Scan(&d.ID, &d.Name, &d.PhoneNumber, &d.BloodType, &d.KinName, &d.KinPhone, &d.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListDonors returns every donor in registration order.
func (r *PostgresRepository) ListDonors(ctx context.Context) ([]domain.Donor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, phone_number, blood_type, kin_name, kin_phone, created_at
		FROM donors ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	donors := make([]domain.Donor, 0)
	for rows.Next() {
		var d domain.Donor
		if err := rows.Scan(&d.ID, &d.Name, &d.PhoneNumber, &d.BloodType, &d.KinName, &d.KinPhone, &d.CreatedAt); err != nil {
			return nil, err
		}
		donors = append(donors, d)
	}
	return donors, rows.Err()
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, e domain.LedgerEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, donor_id, description, amount, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.DonorID, e.Description, e.Amount, e.Type, e.CreatedAt)
	return err
}

// lockDonor takes the per-donor write lock inside tx.
func lockDonor(ctx context.Context, tx pgx.Tx, donorID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM donors WHERE id = $1 FOR UPDATE`, donorID).Scan(&id)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// AppendLedgerEntry records a single credit or debit.
func (r *PostgresRepository) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockDonor(ctx, tx, entry.DonorID); err != nil {
		return err
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListLedgerEntries returns a donor's ledger oldest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, donorID uuid.UUID) ([]domain.LedgerEntry, error) {
	if _, err := r.FindDonorByID(ctx, donorID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, donor_id, description, amount, type, created_at
		FROM ledger_entries
		WHERE donor_id = $1
		ORDER BY created_at, id
	`, donorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.DonorID, &e.Description, &e.Amount, &e.Type, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ledgerSum(ctx context.Context, q querier, donorID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE donor_id = $1`, donorID).Scan(&sum)
	return sum, err
}

func stagedHolds(ctx context.Context, q querier, donorID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(cost), 0) FROM redemptions WHERE donor_id = $1 AND status = 'staged'`, donorID).Scan(&sum)
	return sum, err
}

// Balance is the sum of the donor's ledger.
func (r *PostgresRepository) Balance(ctx context.Context, donorID uuid.UUID) (int64, error) {
	if _, err := r.FindDonorByID(ctx, donorID); err != nil {
		return 0, err
	}
	return ledgerSum(ctx, r.db, donorID)
}

// AvailableBalance is the ledger sum minus staged redemption holds.
func (r *PostgresRepository) AvailableBalance(ctx context.Context, donorID uuid.UUID) (int64, error) {
	if _, err := r.FindDonorByID(ctx, donorID); err != nil {
		return 0, err
	}
	return availableBalance(ctx, r.db, donorID)
}

func availableBalance(ctx context.Context, q querier, donorID uuid.UUID) (int64, error) {
	sum, err := ledgerSum(ctx, q, donorID)
	if err != nil {
		return 0, err
	}
	holds, err := stagedHolds(ctx, q, donorID)
	if err != nil {
		return 0, err
	}
	return sum - holds, nil
}

// StageRedemption reserves the item cost against the donor's available balance.
func (r *PostgresRepository) StageRedemption(ctx context.Context, red *domain.Redemption) error {
	if red.ID == uuid.Nil {
		red.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Use FOR UPDATE on the donor row to serialize redemptions per donor.
	if err := lockDonor(ctx, tx, red.DonorID); err != nil {
		return err
	}
	available, err := availableBalance(ctx, tx, red.DonorID)
	if err != nil {
		return err
	}
	if available < red.Cost {
		return ErrInsufficientBalance
	}

	red.Status = domain.RedemptionStaged
	err = tx.QueryRow(ctx, `
		INSERT INTO redemptions (id, donor_id, code, item_id, item_title, cost, location, suggested_time, reasoning, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, red.ID, red.DonorID, red.Code, red.ItemID, red.ItemTitle, red.Cost, red.Location, red.SuggestedTime, red.Reasoning, red.Status).
		Scan(&red.CreatedAt, &red.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "redemptions_code_key") {
			return ErrDuplicateCode
		}
		return err
	}
	return tx.Commit(ctx)
}

func scanRedemption(row pgx.Row) (*domain.Redemption, error) {
	var red domain.Redemption
	err := row.Scan(&red.ID, &red.DonorID, &red.Code, &red.ItemID, &red.ItemTitle, &red.Cost,
		&red.Location, &red.SuggestedTime, &red.Reasoning, &red.Status, &red.CreatedAt, &red.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &red, nil
}

// lockRedemption loads a redemption and its donor row under lock.
func lockRedemption(ctx context.Context, tx pgx.Tx, redemptionID uuid.UUID) (*domain.Redemption, error) {
	red, err := scanRedemption(tx.QueryRow(ctx,
		`SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1 FOR UPDATE`, redemptionID))
	if err != nil {
		return nil, err
	}
	if err := lockDonor(ctx, tx, red.DonorID); err != nil {
		return nil, err
	}
	return red, nil
}

func setRedemptionStatus(ctx context.Context, tx pgx.Tx, red *domain.Redemption, status domain.RedemptionStatus) error {
	red.Status = status
	return tx.QueryRow(ctx,
		`UPDATE redemptions SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
		status, red.ID).Scan(&red.UpdatedAt)
}

// FinalizeRedemption converts a staged hold into a ledger debit.
func (r *PostgresRepository) FinalizeRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, *domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	red, err := lockRedemption(ctx, tx, redemptionID)
	if err != nil {
		return nil, nil, err
	}
	if red.Status != domain.RedemptionStaged {
		return nil, nil, ErrInvalidStatus
	}

	entry := domain.NewLedgerEntry(red.DonorID, RedeemedDescription(red.ItemTitle), -red.Cost)
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, err
	}
	if err := setRedemptionStatus(ctx, tx, red, domain.RedemptionPending); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return red, &entry, nil
}

// DiscardRedemption releases a staged hold.
func (r *PostgresRepository) DiscardRedemption(ctx context.Context, redemptionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM redemptions WHERE id = $1 AND status = 'staged'`, redemptionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Distinguish a missing record from one that already moved on.
	var status domain.RedemptionStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM redemptions WHERE id = $1`, redemptionID).Scan(&status)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrInvalidStatus
}

// ReleaseStaleRedemptions deletes staged holds created before stagedBefore.
func (r *PostgresRepository) ReleaseStaleRedemptions(ctx context.Context, stagedBefore time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM redemptions WHERE status = 'staged' AND created_at < $1`, stagedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindRedemptionByID retrieves a non-staged redemption.
func (r *PostgresRepository) FindRedemptionByID(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, error) {
	return scanRedemption(r.db.QueryRow(ctx,
		`SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1 AND status <> 'staged'`, redemptionID))
}

// ListRedemptions returns matching redemptions, newest first.
func (r *PostgresRepository) ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]domain.Redemption, error) {
	query, args := redemptionListQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Redemption, 0)
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *red)
	}
	return out, rows.Err()
}

func redemptionListQuery(filter RedemptionFilter) (string, []any) {
	conds := []string{"status <> 'staged'"}
	var args []any
	if filter.DonorID != nil {
		args = append(args, *filter.DonorID)
		conds = append(conds, fmt.Sprintf("donor_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	return `SELECT ` + redemptionColumns + ` FROM redemptions WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at DESC, id`, args
}

// FulfillRedemption marks a pending voucher as used.
func (r *PostgresRepository) FulfillRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	red, err := lockRedemption(ctx, tx, redemptionID)
	if err != nil {
		return nil, err
	}
	switch red.Status {
	case domain.RedemptionStaged:
		return nil, ErrNotFound
	case domain.RedemptionPending:
	default:
		return nil, ErrInvalidStatus
	}
	if err := setRedemptionStatus(ctx, tx, red, domain.RedemptionFulfilled); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return red, nil
}

// RejectRedemption voids a pending voucher and refunds its cost.
func (r *PostgresRepository) RejectRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.Redemption, *domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	red, err := lockRedemption(ctx, tx, redemptionID)
	if err != nil {
		return nil, nil, err
	}
	switch red.Status {
	case domain.RedemptionStaged:
		return nil, nil, ErrNotFound
	case domain.RedemptionPending:
	default:
		return nil, nil, ErrInvalidStatus
	}

	entry := domain.NewLedgerEntry(red.DonorID, RefundDescription(red.ItemTitle), red.Cost)
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, err
	}
	if err := setRedemptionStatus(ctx, tx, red, domain.RedemptionRejected); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return red, &entry, nil
}

// CreatePledge books a pledge and credits the pledge tokens.
func (r *PostgresRepository) CreatePledge(ctx context.Context, p *domain.Pledge, credit domain.LedgerEntry) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockDonor(ctx, tx, p.DonorID); err != nil {
		return err
	}
	p.Status = domain.PledgeScheduled
	err = tx.QueryRow(ctx, `
		INSERT INTO pledges (id, donor_id, facility, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.DonorID, p.Facility, p.ScheduledFor, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}
	if err := insertLedgerEntry(ctx, tx, credit); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanPledge(row pgx.Row) (*domain.Pledge, error) {
	var p domain.Pledge
	err := row.Scan(&p.ID, &p.DonorID, &p.Facility, &p.ScheduledFor, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindPledgeByID retrieves a pledge by ID.
func (r *PostgresRepository) FindPledgeByID(ctx context.Context, pledgeID uuid.UUID) (*domain.Pledge, error) {
	return scanPledge(r.db.QueryRow(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1`, pledgeID))
}

// ListPledges returns matching pledges ordered by appointment time.
func (r *PostgresRepository) ListPledges(ctx context.Context, filter PledgeFilter) ([]domain.Pledge, error) {
	query, args := pledgeListQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Pledge, 0)
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) transitionPledge(ctx context.Context, pledgeID uuid.UUID, to domain.PledgeStatus, entry domain.LedgerEntry) (*domain.Pledge, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := scanPledge(tx.QueryRow(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = $1 FOR UPDATE`, pledgeID))
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PledgeScheduled {
		return nil, ErrInvalidStatus
	}
	if err := lockDonor(ctx, tx, p.DonorID); err != nil {
		return nil, err
	}

	p.Status = to
	err = tx.QueryRow(ctx, `UPDATE pledges SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`, to, pledgeID).
		Scan(&p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// CancelPledge cancels a scheduled pledge and records the penalty.
func (r *PostgresRepository) CancelPledge(ctx context.Context, pledgeID uuid.UUID, penalty domain.LedgerEntry) (*domain.Pledge, error) {
	return r.transitionPledge(ctx, pledgeID, domain.PledgeCancelled, penalty)
}

// CompletePledge completes a scheduled pledge and credits the donation.
func (r *PostgresRepository) CompletePledge(ctx context.Context, pledgeID uuid.UUID, credit domain.LedgerEntry) (*domain.Pledge, error) {
	return r.transitionPledge(ctx, pledgeID, domain.PledgeCompleted, credit)
}

func pledgeListQuery(filter PledgeFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.DonorID != nil {
		args = append(args, *filter.DonorID)
		conds = append(conds, fmt.Sprintf("donor_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.ScheduledFrom.IsZero() {
		args = append(args, filter.ScheduledFrom)
		conds = append(conds, fmt.Sprintf("scheduled_for >= $%d", len(args)))
	}
	if !filter.ScheduledUntil.IsZero() {
		args = append(args, filter.ScheduledUntil)
		conds = append(conds, fmt.Sprintf("scheduled_for < $%d", len(args)))
	}

	query := `SELECT ` + pledgeColumns + ` FROM pledges`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	return query + ` ORDER BY scheduled_for, id`, args
}
