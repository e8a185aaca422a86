package sql

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"dropmail/backend/internal/domain"
)

// ========== Address Repository ==========

// CreateAddress 创建新的一次性地址
func (s *Store) CreateAddress(addr *domain.Address) error {
	var query string
	if s.driverName == "postgres" {
		query = `
			INSERT INTO addresses (address, owner_token, redirect_email, redirect, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (address) DO NOTHING
		`
	} else {
		query = `
			INSERT IGNORE INTO addresses (address, owner_token, redirect_email, redirect, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
	}

	res, err := s.db.Exec(s.rebind(query),
		strings.ToLower(addr.Address),
		addr.OwnerToken,
		addr.RedirectEmail,
		addr.Redirect,
		addr.CreatedAt,
		addr.ExpiresAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAddressTaken
	}
	return nil
}

// GetAddress 根据地址获取记录
func (s *Store) GetAddress(address string) (*domain.Address, error) {
	query := `
		SELECT address, owner_token, redirect_email, redirect, created_at, expires_at
		FROM addresses
		WHERE address = ?
	`
	var addr domain.Address
	err := s.db.QueryRow(s.rebind(query), strings.ToLower(address)).Scan(
		&addr.Address,
		&addr.OwnerToken,
		&addr.RedirectEmail,
		&addr.Redirect,
		&addr.CreatedAt,
		&addr.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// ListAddressesByOwner 获取所有者名下全部未过期地址
func (s *Store) ListAddressesByOwner(ownerToken string, asOf time.Time) ([]domain.Address, error) {
	query := `
		SELECT address, owner_token, redirect_email, redirect, created_at, expires_at
		FROM addresses
		WHERE owner_token = ? AND expires_at > ?
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(s.rebind(query), ownerToken, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAddresses(rows)
}

// UpdateAddress 更新地址设置（续期、转发开关等）
func (s *Store) UpdateAddress(addr *domain.Address) error {
	query := `
		UPDATE addresses
		SET redirect_email = ?, redirect = ?, expires_at = ?
		WHERE address = ?
	`
	res, err := s.db.Exec(s.rebind(query),
		addr.RedirectEmail,
		addr.Redirect,
		addr.ExpiresAt,
		strings.ToLower(addr.Address),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// MySQL 默认报告改动行数而不是匹配行数,无变化的更新
		// 也会返回 0,需要回查区分地址不存在
		if _, getErr := s.GetAddress(addr.Address); getErr != nil {
			return getErr
		}
	}
	return nil
}

// ListExpiredAddresses 分页返回已过期地址
func (s *Store) ListExpiredAddresses(asOf time.Time, offset, limit int) ([]domain.Address, error) {
	query := `
		SELECT address, owner_token, redirect_email, redirect, created_at, expires_at
		FROM addresses
		WHERE expires_at <= ?
		ORDER BY address ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.Query(s.rebind(query), asOf, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAddresses(rows)
}

// DeleteAddress 删除地址记录，幂等
func (s *Store) DeleteAddress(address string) error {
	query := `DELETE FROM addresses WHERE address = ?`
	_, err := s.db.Exec(s.rebind(query), strings.ToLower(address))
	return err
}

func scanAddresses(rows *sql.Rows) ([]domain.Address, error) {
	result := make([]domain.Address, 0)
	for rows.Next() {
		var addr domain.Address
		if err := rows.Scan(
			&addr.Address,
			&addr.OwnerToken,
			&addr.RedirectEmail,
			&addr.Redirect,
			&addr.CreatedAt,
			&addr.ExpiresAt,
		); err != nil {
			return nil, err
		}
		result = append(result, addr)
	}
	return result, rows.Err()
}
