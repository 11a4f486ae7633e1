package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koyif/cashdesk/internal/domain"
	"github.com/koyif/cashdesk/pkg/logger"
	"github.com/shopspring/decimal"
)

const transactionRollbackError = "error rolling back transaction"

type Postgres struct {
	DB *sql.DB
}

func New(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}

func (p *Postgres) CreateUser(login, hashedPassword string, gatewayUserID int64) (int64, error) {
	var id int64
	err := p.DB.QueryRow(
		"INSERT INTO users (login, password, gateway_user_id) VALUES ($1, $2, $3) RETURNING id",
		login, hashedPassword, gatewayUserID,
	).Scan(&id)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			logger.Log.Warn("user already exists", logger.String("login", login))
			return 0, domain.ErrUserExists
		}
		return 0, fmt.Errorf("error creating user: %w", err)
	}

	return id, nil
}

func (p *Postgres) User(login string) (*domain.User, error) {
	row := p.DB.QueryRow(
		"SELECT id, login, password, gateway_user_id, is_admin, registered_at FROM users WHERE login = $1",
		login,
	)

	var user domain.User
	err := row.Scan(&user.ID, &user.Login, &user.Password, &user.GatewayUserID, &user.IsAdmin, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIncorrectCredentials
		}
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	return &user, nil
}

func (p *Postgres) UserByID(id int64) (*domain.User, error) {
	row := p.DB.QueryRow(
		"SELECT id, login, password, gateway_user_id, is_admin, registered_at FROM users WHERE id = $1",
		id,
	)

	var user domain.User
	err := row.Scan(&user.ID, &user.Login, &user.Password, &user.GatewayUserID, &user.IsAdmin, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	return &user, nil
}

func (p *Postgres) AdminIDs() ([]int64, error) {
	rows, err := p.DB.Query("SELECT id FROM users WHERE is_admin")
	if err != nil {
		return nil, fmt.Errorf("error fetching admins: %w", err)
	}
	defer closeRows(rows)

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning admin id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over admins: %w", err)
	}

	return ids, nil
}

func (p *Postgres) Balance(userID int64) (*domain.Balance, error) {
	var balance domain.Balance
	err := p.DB.QueryRow(
		"SELECT balance, total_deposited, deposits_count FROM users WHERE id = $1",
		userID,
	).Scan(&balance.Current, &balance.TotalDeposited, &balance.DepositsCount)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("error fetching balance: %w", err)
	}

	return &balance, nil
}

const depositColumns = "id, user_id, amount, method, status, instructions, proof_ref, admin_id, created_at, instructions_sent_at, completed_at"

func (p *Postgres) CreateDeposit(userID int64, amount decimal.Decimal, method domain.PaymentMethod) (*domain.Deposit, error) {
	row := p.DB.QueryRow(
		"INSERT INTO deposits (user_id, amount, method, status) VALUES ($1, $2, $3, $4) RETURNING "+depositColumns,
		userID, amount, string(method), string(domain.DepositStatusAwaitingPayment),
	)

	deposit, err := scanDeposit(row)
	if err != nil {
		return nil, fmt.Errorf("error creating deposit: %w", err)
	}

	return deposit, nil
}

func (p *Postgres) Deposit(id int64) (*domain.Deposit, error) {
	row := p.DB.QueryRow("SELECT "+depositColumns+" FROM deposits WHERE id = $1", id)

	deposit, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, fmt.Errorf("error fetching deposit: %w", err)
	}

	return deposit, nil
}

func (p *Postgres) DepositsByUser(userID int64) ([]domain.Deposit, error) {
	rows, err := p.DB.Query(
		"SELECT "+depositColumns+" FROM deposits WHERE user_id = $1 ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("error fetching deposits: %w", err)
	}

	return collectDeposits(rows)
}

func (p *Postgres) DepositsByStatus(status domain.DepositStatus) ([]domain.Deposit, error) {
	rows, err := p.DB.Query(
		"SELECT "+depositColumns+" FROM deposits WHERE status = $1 ORDER BY created_at",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("error fetching deposits: %w", err)
	}

	return collectDeposits(rows)
}

// LatestDepositInStatus returns the requester's newest deposit in the given
// status. Proof uploads without an explicit id are matched through it.
func (p *Postgres) LatestDepositInStatus(userID int64, status domain.DepositStatus) (*domain.Deposit, error) {
	row := p.DB.QueryRow(
		"SELECT "+depositColumns+" FROM deposits WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1",
		userID, string(status),
	)

	deposit, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoEligibleDeposit
		}
		return nil, fmt.Errorf("error fetching deposit: %w", err)
	}

	return deposit, nil
}

// AttachInstructions moves an awaiting deposit to INSTRUCTIONS_SENT in one
// conditional statement. A zero update means the record was no longer awaiting
// payment.
func (p *Postgres) AttachInstructions(id int64, text string, adminID int64) error {
	result, err := p.DB.Exec(
		"UPDATE deposits SET status = $1, instructions = $2, admin_id = $3, instructions_sent_at = now() WHERE id = $4 AND status = $5",
		string(domain.DepositStatusInstructionsSent), text, adminID, id, string(domain.DepositStatusAwaitingPayment),
	)
	if err != nil {
		return fmt.Errorf("error attaching instructions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected for instructions: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrInvalidState
	}

	return nil
}

// TransitionDeposit applies a compare-and-transition on the authoritative
// record: the status changes only if it still equals from. The boolean tells
// the caller whether this call performed the transition.
func (p *Postgres) TransitionDeposit(id int64, from, to domain.DepositStatus, adminID *int64) (bool, error) {
	result, err := p.DB.Exec(
		"UPDATE deposits SET status = $1, admin_id = COALESCE($2, admin_id) WHERE id = $3 AND status = $4",
		string(to), adminID, id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("error updating deposit status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected for status update: %w", err)
	}

	return rowsAffected > 0, nil
}

func (p *Postgres) SubmitProof(id int64, artifactRef string) error {
	result, err := p.DB.Exec(
		"UPDATE deposits SET status = $1, proof_ref = $2 WHERE id = $3 AND status = $4",
		string(domain.DepositStatusProofSubmitted), artifactRef, id, string(domain.DepositStatusConfirmedPaid),
	)
	if err != nil {
		return fmt.Errorf("error attaching proof: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected for proof: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrInvalidState
	}

	return nil
}

// CompleteDeposit transitions PROOF_SUBMITTED → COMPLETED and credits the
// requester's balance in one transaction. The transition is conditional, so
// the credit is applied at most once per deposit.
func (p *Postgres) CompleteDeposit(id, adminID int64) error {
	tx, err := p.DB.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	var (
		userID int64
		amount decimal.Decimal
	)
	err = tx.QueryRow(
		"UPDATE deposits SET status = $1, admin_id = $2, completed_at = now() WHERE id = $3 AND status = $4 RETURNING user_id, amount",
		string(domain.DepositStatusCompleted), adminID, id, string(domain.DepositStatusProofSubmitted),
	).Scan(&userID, &amount)

	if err != nil {
		rollback(tx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInvalidState
		}
		return fmt.Errorf("error completing deposit: %w", err)
	}

	_, err = tx.Exec(
		"UPDATE users SET balance = balance + $1, total_deposited = total_deposited + $1, deposits_count = deposits_count + 1 WHERE id = $2",
		amount, userID,
	)
	if err != nil {
		rollback(tx)
		logger.Log.Error("error crediting user balance", logger.Int64("deposit_id", id), logger.Int64("user_id", userID), logger.Error(err))
		return fmt.Errorf("error crediting user balance: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		rollback(tx)
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

// OverdueInstructionDeposits lists INSTRUCTIONS_SENT deposits whose
// instructions were sent before the cutoff. The sweep uses it to cancel
// deposits whose in-memory timers were lost across a restart.
func (p *Postgres) OverdueInstructionDeposits(cutoff time.Time) ([]domain.Deposit, error) {
	rows, err := p.DB.Query(
		"SELECT "+depositColumns+" FROM deposits WHERE status = $1 AND instructions_sent_at < $2",
		string(domain.DepositStatusInstructionsSent), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("error fetching overdue deposits: %w", err)
	}

	return collectDeposits(rows)
}

const payoutColumns = "id, user_id, amount, method, destination, code, status, admin_id, created_at, processed_at"

func (p *Postgres) CreatePayout(userID int64, amount decimal.Decimal, method domain.PaymentMethod, destination, code string) (*domain.Payout, error) {
	row := p.DB.QueryRow(
		"INSERT INTO payouts (user_id, amount, method, destination, code, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+payoutColumns,
		userID, amount, string(method), destination, code, string(domain.PayoutStatusRequested),
	)

	payout, err := scanPayout(row)
	if err != nil {
		return nil, fmt.Errorf("error creating payout: %w", err)
	}

	return payout, nil
}

func (p *Postgres) Payout(id int64) (*domain.Payout, error) {
	row := p.DB.QueryRow("SELECT "+payoutColumns+" FROM payouts WHERE id = $1", id)

	payout, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("error fetching payout: %w", err)
	}

	return payout, nil
}

func (p *Postgres) PayoutsByUser(userID int64) ([]domain.Payout, error) {
	rows, err := p.DB.Query(
		"SELECT "+payoutColumns+" FROM payouts WHERE user_id = $1 ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("error fetching payouts: %w", err)
	}

	return collectPayouts(rows)
}

func (p *Postgres) PayoutsByStatus(status domain.PayoutStatus) ([]domain.Payout, error) {
	rows, err := p.DB.Query(
		"SELECT "+payoutColumns+" FROM payouts WHERE status = $1 ORDER BY created_at",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("error fetching payouts: %w", err)
	}

	return collectPayouts(rows)
}

func (p *Postgres) TransitionPayout(id int64, from, to domain.PayoutStatus, adminID *int64) (bool, error) {
	result, err := p.DB.Exec(
		"UPDATE payouts SET status = $1, admin_id = COALESCE($2, admin_id), processed_at = now() WHERE id = $3 AND status = $4",
		string(to), adminID, id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("error updating payout status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking rows affected for payout update: %w", err)
	}

	return rowsAffected > 0, nil
}

// CompletePayout marks the request paid and debits the balance, guarded so the
// balance can never go negative.
func (p *Postgres) CompletePayout(id, adminID int64) error {
	tx, err := p.DB.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	var (
		userID int64
		amount decimal.Decimal
	)
	err = tx.QueryRow(
		"UPDATE payouts SET status = $1, admin_id = $2, processed_at = now() WHERE id = $3 AND status = $4 RETURNING user_id, amount",
		string(domain.PayoutStatusCompleted), adminID, id, string(domain.PayoutStatusRequested),
	).Scan(&userID, &amount)

	if err != nil {
		rollback(tx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInvalidState
		}
		return fmt.Errorf("error completing payout: %w", err)
	}

	result, err := tx.Exec(
		"UPDATE users SET balance = balance - $1 WHERE id = $2 AND balance >= $1",
		amount, userID,
	)
	if err != nil {
		rollback(tx)
		logger.Log.Error("error debiting user balance", logger.Int64("payout_id", id), logger.Int64("user_id", userID), logger.Error(err))
		return fmt.Errorf("error debiting user balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		rollback(tx)
		return fmt.Errorf("error checking rows affected for balance debit: %w", err)
	}
	if rowsAffected == 0 {
		rollback(tx)
		logger.Log.Warn("insufficient funds for payout", logger.Int64("payout_id", id), logger.Int64("user_id", userID))
		return domain.ErrInsufficientFunds
	}

	err = tx.Commit()
	if err != nil {
		rollback(tx)
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (p *Postgres) Stats() (*domain.Stats, error) {
	var stats domain.Stats
	err := p.DB.QueryRow(`
		SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM deposits),
			(SELECT coalesce(sum(amount), 0) FROM deposits WHERE status = $1),
			(SELECT count(*) FROM deposits WHERE status = $2)
	`, string(domain.DepositStatusCompleted), string(domain.DepositStatusAwaitingPayment)).
		Scan(&stats.TotalUsers, &stats.TotalDeposits, &stats.TotalAmount, &stats.PendingDeposits)

	if err != nil {
		return nil, fmt.Errorf("error fetching stats: %w", err)
	}

	return &stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row scanner) (*domain.Deposit, error) {
	var (
		deposit domain.Deposit
		method  string
		status  string
	)
	err := row.Scan(
		&deposit.ID, &deposit.UserID, &deposit.Amount, &method, &status,
		&deposit.Instructions, &deposit.ProofRef, &deposit.AdminID,
		&deposit.CreatedAt, &deposit.InstructionsSentAt, &deposit.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	deposit.Method = domain.PaymentMethod(method)
	deposit.Status = domain.DepositStatus(status)

	return &deposit, nil
}

func collectDeposits(rows *sql.Rows) ([]domain.Deposit, error) {
	defer closeRows(rows)

	var deposits []domain.Deposit
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning deposit: %w", err)
		}
		deposits = append(deposits, *deposit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over deposits: %w", err)
	}

	return deposits, nil
}

func scanPayout(row scanner) (*domain.Payout, error) {
	var (
		payout domain.Payout
		method string
		status string
	)
	err := row.Scan(
		&payout.ID, &payout.UserID, &payout.Amount, &method, &payout.Destination,
		&payout.Code, &status, &payout.AdminID, &payout.CreatedAt, &payout.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	payout.Method = domain.PaymentMethod(method)
	payout.Status = domain.PayoutStatus(status)

	return &payout, nil
}

func collectPayouts(rows *sql.Rows) ([]domain.Payout, error) {
	defer closeRows(rows)

	var payouts []domain.Payout
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payout: %w", err)
		}
		payouts = append(payouts, *payout)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over payouts: %w", err)
	}

	return payouts, nil
}

func closeRows(rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.Log.Error("error closing rows", logger.Error(err))
	}
}

func rollback(tx *sql.Tx) {
	err := tx.Rollback()
	if err != nil {
		logger.Log.Error(transactionRollbackError, logger.Error(err))
	}
}
