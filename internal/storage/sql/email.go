package sql

import (
	"database/sql"
	"errors"
	"strings"

	"dropmail/backend/internal/domain"
)

// ========== Email Repository ==========

// SaveEmail 保存邮件元数据，(destination, message_id) 重复时返回 ErrMessageExists
func (s *Store) SaveEmail(email *domain.Email) error {
	var query string
	if s.driverName == "postgres" {
		query = `
			INSERT INTO emails (destination, message_id, source, subject, received_at, is_new, raw_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (destination, message_id) DO NOTHING
		`
	} else {
		query = `
			INSERT IGNORE INTO emails (destination, message_id, source, subject, received_at, is_new, raw_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
	}

	res, err := s.db.Exec(s.rebind(query),
		strings.ToLower(email.Destination),
		email.MessageID,
		email.Source,
		email.Subject,
		email.ReceivedAt,
		email.IsNew,
		email.RawRef,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrMessageExists
	}
	return nil
}

// ListEmails 返回地址名下全部邮件，按接收时间升序
func (s *Store) ListEmails(destination string) ([]domain.Email, error) {
	query := `
		SELECT destination, message_id, source, subject, received_at, is_new, raw_ref
		FROM emails
		WHERE destination = ?
		ORDER BY received_at ASC
	`
	rows, err := s.db.Query(s.rebind(query), strings.ToLower(destination))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Email, 0)
	for rows.Next() {
		var email domain.Email
		if err := rows.Scan(
			&email.Destination,
			&email.MessageID,
			&email.Source,
			&email.Subject,
			&email.ReceivedAt,
			&email.IsNew,
			&email.RawRef,
		); err != nil {
			return nil, err
		}
		result = append(result, email)
	}
	return result, rows.Err()
}

// GetEmail 获取单封邮件的元数据
func (s *Store) GetEmail(destination, messageID string) (*domain.Email, error) {
	query := `
		SELECT destination, message_id, source, subject, received_at, is_new, raw_ref
		FROM emails
		WHERE destination = ? AND message_id = ?
	`
	var email domain.Email
	err := s.db.QueryRow(s.rebind(query), strings.ToLower(destination), messageID).Scan(
		&email.Destination,
		&email.MessageID,
		&email.Source,
		&email.Subject,
		&email.ReceivedAt,
		&email.IsNew,
		&email.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &email, nil
}

// MarkEmailRead 将邮件标记为已读
func (s *Store) MarkEmailRead(destination, messageID string) error {
	query := `UPDATE emails SET is_new = ? WHERE destination = ? AND message_id = ?`
	res, err := s.db.Exec(s.rebind(query), false, strings.ToLower(destination), messageID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// 邮件不存在或已读:区分两种情况
		if _, getErr := s.GetEmail(destination, messageID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// DeleteEmail 删除单封邮件的元数据，幂等
func (s *Store) DeleteEmail(destination, messageID string) error {
	query := `DELETE FROM emails WHERE destination = ? AND message_id = ?`
	_, err := s.db.Exec(s.rebind(query), strings.ToLower(destination), messageID)
	return err
}
