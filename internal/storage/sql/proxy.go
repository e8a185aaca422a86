package sql

import (
	"database/sql"
	"errors"
	"strings"

	"dropmail/backend/internal/domain"
)

// ========== Proxy Repository ==========

// CreateProxyAddress 按 (disposable, actual) 映射对去重插入。
//
// 并发竞争由唯一索引 idx_proxy_pair 仲裁:插入未生效时查回
// 已有的代理地址并回写给调用方,返回 created=false。
func (s *Store) CreateProxyAddress(proxy *domain.ProxyAddress) (bool, error) {
	var query string
	if s.driverName == "postgres" {
		query = `
			INSERT INTO proxy_addresses (proxy_address, actual_address, disposable_address, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (actual_address, disposable_address) DO NOTHING
		`
	} else {
		query = `
			INSERT IGNORE INTO proxy_addresses (proxy_address, actual_address, disposable_address, created_at)
			VALUES (?, ?, ?, ?)
		`
	}

	res, err := s.db.Exec(s.rebind(query),
		strings.ToLower(proxy.ProxyAddress),
		strings.ToLower(proxy.ActualAddress),
		strings.ToLower(proxy.DisposableAddress),
		proxy.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	existing, err := s.FindProxyByPair(proxy.DisposableAddress, proxy.ActualAddress)
	if err != nil {
		return false, err
	}
	*proxy = *existing
	return false, nil
}

// GetProxyAddress 根据代理地址获取映射
func (s *Store) GetProxyAddress(proxyAddress string) (*domain.ProxyAddress, error) {
	query := `
		SELECT proxy_address, actual_address, disposable_address, created_at
		FROM proxy_addresses
		WHERE proxy_address = ?
	`
	var proxy domain.ProxyAddress
	err := s.db.QueryRow(s.rebind(query), strings.ToLower(proxyAddress)).Scan(
		&proxy.ProxyAddress,
		&proxy.ActualAddress,
		&proxy.DisposableAddress,
		&proxy.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProxyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &proxy, nil
}

// FindProxyByPair 根据映射对获取代理地址
func (s *Store) FindProxyByPair(disposableAddress, actualAddress string) (*domain.ProxyAddress, error) {
	query := `
		SELECT proxy_address, actual_address, disposable_address, created_at
		FROM proxy_addresses
		WHERE disposable_address = ? AND actual_address = ?
	`
	var proxy domain.ProxyAddress
	err := s.db.QueryRow(s.rebind(query),
		strings.ToLower(disposableAddress),
		strings.ToLower(actualAddress),
	).Scan(
		&proxy.ProxyAddress,
		&proxy.ActualAddress,
		&proxy.DisposableAddress,
		&proxy.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProxyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &proxy, nil
}

// ListProxiesByParent 获取一次性地址名下全部代理映射
func (s *Store) ListProxiesByParent(disposableAddress string) ([]domain.ProxyAddress, error) {
	query := `
		SELECT proxy_address, actual_address, disposable_address, created_at
		FROM proxy_addresses
		WHERE disposable_address = ?
	`
	rows, err := s.db.Query(s.rebind(query), strings.ToLower(disposableAddress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProxyAddress, 0)
	for rows.Next() {
		var proxy domain.ProxyAddress
		if err := rows.Scan(
			&proxy.ProxyAddress,
			&proxy.ActualAddress,
			&proxy.DisposableAddress,
			&proxy.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, proxy)
	}
	return result, rows.Err()
}

// DeleteProxiesByParent 级联删除一次性地址名下全部代理映射，幂等
func (s *Store) DeleteProxiesByParent(disposableAddress string) error {
	query := `DELETE FROM proxy_addresses WHERE disposable_address = ?`
	_, err := s.db.Exec(s.rebind(query), strings.ToLower(disposableAddress))
	return err
}
