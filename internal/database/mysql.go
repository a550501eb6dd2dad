package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"refhub/entity"
	"refhub/internal/config"
)

// MySql implements the referral store over a relational database. The
// uniqueness invariants live in UNIQUE KEY constraints (referrer email,
// code, friend email) instead of application-level checks, as allowed by
// the persistence contract.
type MySql struct {
	db         *sql.DB
	statements map[string]*sql.Stmt
	mu         sync.Mutex
}

func NewSQLClient(conf *config.Config) (*MySql, error) {
	connectionURI := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		conf.MySql.User, conf.MySql.Password, conf.MySql.Host, conf.MySql.Port, conf.MySql.Database)
	db, err := sql.Open("mysql", connectionURI)
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// wait for the database to come up on deployment restarts
	for i := 0; i < 3; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		if i == 2 {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		time.Sleep(10 * time.Second)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &MySql{
		db:         db,
		statements: make(map[string]*sql.Stmt),
	}

	if err = sdb.createTables(); err != nil {
		return nil, err
	}

	return sdb, nil
}

func (s *MySql) Close() {
	s.mu.Lock()
	for _, stmt := range s.statements {
		_ = stmt.Close()
	}
	s.mu.Unlock()
	_ = s.db.Close()
}

func (s *MySql) writeError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return entity.ErrDuplicate
	}
	return fmt.Errorf("sql insert: %w", err)
}

func (s *MySql) ReferrerByEmail(ctx context.Context, email string) (*entity.Referrer, error) {
	stmt, err := s.stmt("referrerByEmail", `
		SELECT id, name, email, phone, code, referral_count, earnings, status, created_at
		  FROM referrers WHERE email = ?`)
	if err != nil {
		return nil, err
	}
	return s.scanReferrer(stmt.QueryRowContext(ctx, email))
}

func (s *MySql) ReferrerByCode(ctx context.Context, code string) (*entity.Referrer, error) {
	stmt, err := s.stmt("referrerByCode", `
		SELECT id, name, email, phone, code, referral_count, earnings, status, created_at
		  FROM referrers WHERE code = ?`)
	if err != nil {
		return nil, err
	}
	return s.scanReferrer(stmt.QueryRowContext(ctx, code))
}

func (s *MySql) scanReferrer(row *sql.Row) (*entity.Referrer, error) {
	var referrer entity.Referrer
	err := row.Scan(
		&referrer.Id,
		&referrer.Name,
		&referrer.Email,
		&referrer.Phone,
		&referrer.Code,
		&referrer.ReferralCount,
		&referrer.Earnings,
		&referrer.Status,
		&referrer.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sql scan: %w", err)
	}
	return &referrer, nil
}

func (s *MySql) CodeExists(ctx context.Context, code string) (bool, error) {
	stmt, err := s.stmt("codeExists", `SELECT COUNT(*) FROM referrers WHERE code = ?`)
	if err != nil {
		return false, err
	}
	var count int64
	if err = stmt.QueryRowContext(ctx, code).Scan(&count); err != nil {
		return false, fmt.Errorf("sql scan: %w", err)
	}
	return count > 0, nil
}

func (s *MySql) CreateReferrer(ctx context.Context, referrer *entity.Referrer) error {
	stmt, err := s.stmt("createReferrer", `
		INSERT INTO referrers (id, name, email, phone, code, referral_count, earnings, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		referrer.Id,
		referrer.Name,
		referrer.Email,
		referrer.Phone,
		referrer.Code,
		referrer.ReferralCount,
		referrer.Earnings,
		referrer.Status,
		referrer.CreatedAt,
	)
	if err != nil {
		return s.writeError(err)
	}
	return nil
}

func (s *MySql) RedemptionByFriendEmail(ctx context.Context, email string) (*entity.Redemption, error) {
	stmt, err := s.stmt("redemptionByFriendEmail", selectRedemption+` WHERE friend_email = ?`)
	if err != nil {
		return nil, err
	}
	return s.scanRedemption(stmt.QueryRowContext(ctx, email))
}

func (s *MySql) RedemptionById(ctx context.Context, id string) (*entity.Redemption, error) {
	stmt, err := s.stmt("redemptionById", selectRedemption+` WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return s.scanRedemption(stmt.QueryRowContext(ctx, id))
}

func (s *MySql) scanRedemption(row *sql.Row) (*entity.Redemption, error) {
	var redemption entity.Redemption
	err := row.Scan(
		&redemption.Id,
		&redemption.ReferrerCode,
		&redemption.ReferrerId,
		&redemption.ReferrerName,
		&redemption.FriendName,
		&redemption.FriendEmail,
		&redemption.FriendPhone,
		&redemption.UsedAt,
		&redemption.Status,
		&redemption.ReferrerReward,
		&redemption.FriendReward,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sql scan: %w", err)
	}
	return &redemption, nil
}

func (s *MySql) CreateRedemption(ctx context.Context, redemption *entity.Redemption) error {
	stmt, err := s.stmt("createRedemption", `
		INSERT INTO referrals (id, referrer_code, referrer_id, referrer_name, friend_name,
		                       friend_email, friend_phone, used_at, status, referrer_reward, friend_reward)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		redemption.Id,
		redemption.ReferrerCode,
		redemption.ReferrerId,
		redemption.ReferrerName,
		redemption.FriendName,
		redemption.FriendEmail,
		redemption.FriendPhone,
		redemption.UsedAt,
		redemption.Status,
		redemption.ReferrerReward,
		redemption.FriendReward,
	)
	if err != nil {
		return s.writeError(err)
	}
	return nil
}

// IncrementReferralCount is a single relative UPDATE, never a
// read-modify-write of the counter value.
func (s *MySql) IncrementReferralCount(ctx context.Context, referrerId string) error {
	stmt, err := s.stmt("incrementReferralCount", `
		UPDATE referrers SET referral_count = referral_count + 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	result, err := stmt.ExecContext(ctx, referrerId)
	if err != nil {
		return fmt.Errorf("sql update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sql update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("referrer not found: %s", referrerId)
	}
	return nil
}

func (s *MySql) RedemptionsByReferrer(ctx context.Context, referrerId string) ([]*entity.Redemption, error) {
	stmt, err := s.stmt("redemptionsByReferrer", selectRedemption+` WHERE referrer_id = ? ORDER BY used_at`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, referrerId)
	if err != nil {
		return nil, fmt.Errorf("sql query: %w", err)
	}
	return s.collectRedemptions(rows)
}

func (s *MySql) Redemptions(ctx context.Context) ([]*entity.Redemption, error) {
	stmt, err := s.stmt("redemptions", selectRedemption+` ORDER BY used_at`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sql query: %w", err)
	}
	return s.collectRedemptions(rows)
}

func (s *MySql) collectRedemptions(rows *sql.Rows) ([]*entity.Redemption, error) {
	defer rows.Close()

	var redemptions []*entity.Redemption
	for rows.Next() {
		var redemption entity.Redemption
		err := rows.Scan(
			&redemption.Id,
			&redemption.ReferrerCode,
			&redemption.ReferrerId,
			&redemption.ReferrerName,
			&redemption.FriendName,
			&redemption.FriendEmail,
			&redemption.FriendPhone,
			&redemption.UsedAt,
			&redemption.Status,
			&redemption.ReferrerReward,
			&redemption.FriendReward,
		)
		if err != nil {
			return nil, fmt.Errorf("sql scan: %w", err)
		}
		redemptions = append(redemptions, &redemption)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql rows: %w", err)
	}
	return redemptions, nil
}

func (s *MySql) SetRedemptionStatus(ctx context.Context, id string, status entity.RedemptionStatus) error {
	stmt, err := s.stmt("setRedemptionStatus", `UPDATE referrals SET status = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	result, err := stmt.ExecContext(ctx, status, id)
	if err != nil {
		return fmt.Errorf("sql update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sql update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("redemption not found: %s", id)
	}
	return nil
}

func (s *MySql) UserByToken(ctx context.Context, token string) (*entity.User, error) {
	stmt, err := s.stmt("userByToken", `
		SELECT username, name, token, registered_at FROM users WHERE token = ?`)
	if err != nil {
		return nil, err
	}
	var user entity.User
	err = stmt.QueryRowContext(ctx, token).Scan(
		&user.Username,
		&user.Name,
		&user.Token,
		&user.RegisteredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sql scan: %w", err)
	}
	return &user, nil
}

func (s *MySql) ReferrerCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "referrerCount", `SELECT COUNT(*) FROM referrers`)
}

func (s *MySql) RedemptionCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "redemptionCount", `SELECT COUNT(*) FROM referrals`)
}

func (s *MySql) count(ctx context.Context, name, query string) (int64, error) {
	stmt, err := s.stmt(name, query)
	if err != nil {
		return 0, err
	}
	var count int64
	if err = stmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, fmt.Errorf("sql scan: %w", err)
	}
	return count, nil
}
