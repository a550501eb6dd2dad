package database

import (
	"database/sql"
	"fmt"
)

const selectRedemption = `
	SELECT id, referrer_code, referrer_id, referrer_name, friend_name,
	       friend_email, friend_phone, used_at, status, referrer_reward, friend_reward
	  FROM referrals`

// The schema carries the subsystem invariants as constraints: UNIQUE KEY on
// referrer email and code, UNIQUE KEY on friend_email so a second redemption
// for the same friend is rejected by the store, not just by the pre-check.
var tableDefinitions = map[string]string{
	"referrers": `CREATE TABLE IF NOT EXISTS referrers (
		id             VARCHAR(36)  NOT NULL,
		name           VARCHAR(255) NOT NULL,
		email          VARCHAR(255) NOT NULL,
		phone          VARCHAR(64)  NOT NULL DEFAULT '',
		code           VARCHAR(10)  NOT NULL,
		referral_count BIGINT       NOT NULL DEFAULT 0,
		earnings       DOUBLE       NOT NULL DEFAULT 0,
		status         VARCHAR(16)  NOT NULL DEFAULT 'active',
		created_at     DATETIME     NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_referrers_email (email),
		UNIQUE KEY uniq_referrers_code (code)
	)`,
	"referrals": `CREATE TABLE IF NOT EXISTS referrals (
		id              VARCHAR(36)  NOT NULL,
		referrer_code   VARCHAR(10)  NOT NULL,
		referrer_id     VARCHAR(36)  NOT NULL,
		referrer_name   VARCHAR(255) NOT NULL,
		friend_name     VARCHAR(255) NOT NULL,
		friend_email    VARCHAR(255) NOT NULL,
		friend_phone    VARCHAR(64)  NOT NULL DEFAULT '',
		used_at         DATETIME     NOT NULL,
		status          VARCHAR(16)  NOT NULL DEFAULT 'pending',
		referrer_reward BIGINT       NOT NULL DEFAULT 0,
		friend_reward   BIGINT       NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_referrals_friend_email (friend_email),
		KEY idx_referrals_referrer_id (referrer_id)
	)`,
	"users": `CREATE TABLE IF NOT EXISTS users (
		username      VARCHAR(64)  NOT NULL,
		name          VARCHAR(255) NOT NULL DEFAULT '',
		token         VARCHAR(255) NOT NULL,
		registered_at DATETIME     NOT NULL,
		PRIMARY KEY (username),
		UNIQUE KEY uniq_users_token (token)
	)`,
}

func (s *MySql) createTables() error {
	for name, definition := range tableDefinitions {
		if _, err := s.db.Exec(definition); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	return nil
}

// stmt returns a cached prepared statement, preparing it on first use.
func (s *MySql) stmt(name, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt, ok := s.statements[name]; ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", name, err)
	}
	s.statements[name] = stmt
	return stmt, nil
}
