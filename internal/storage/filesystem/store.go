package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dropmail/backend/internal/domain"
)

// Store 文件系统原始邮件存储实现。
//
// 布局: {basePath}/{destination}/{messageID}.eml。
// 地址与 messageID 在入库前已通过校验,这里只做最低限度的
// 路径分隔符过滤。
type Store struct {
	basePath string // 原始邮件存储根目录
}

// NewStore 创建文件系统存储实例
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("blob store base path is empty")
	}

	// 确保基础目录存在
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{basePath: basePath}, nil
}

// sanitize 过滤路径分隔符，防止键逃出存储目录
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}

func (s *Store) rawPath(destination, messageID string) string {
	return filepath.Join(
		s.basePath,
		sanitize(strings.ToLower(destination)),
		sanitize(messageID)+".eml",
	)
}

// SaveRaw 保存原始邮件内容，返回相对于存储根目录的引用
func (s *Store) SaveRaw(destination, messageID string, raw []byte) (string, error) {
	rawFile := s.rawPath(destination, messageID)

	if err := os.MkdirAll(filepath.Dir(rawFile), 0755); err != nil {
		return "", fmt.Errorf("failed to create mailbox directory: %w", err)
	}
	if err := os.WriteFile(rawFile, raw, 0644); err != nil {
		return "", fmt.Errorf("failed to write raw message: %w", err)
	}

	relPath, err := filepath.Rel(s.basePath, rawFile)
	if err != nil {
		return rawFile, nil
	}
	return relPath, nil
}

// GetRaw 读取原始邮件内容
func (s *Store) GetRaw(destination, messageID string) ([]byte, error) {
	content, err := os.ReadFile(s.rawPath(destination, messageID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to read raw message: %w", err)
	}
	return content, nil
}

// DeleteRaw 删除单封原始邮件，幂等
func (s *Store) DeleteRaw(destination, messageID string) error {
	err := os.Remove(s.rawPath(destination, messageID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete raw message: %w", err)
	}
	return nil
}

// DeleteAllRaw 删除地址名下全部原始邮件，幂等
func (s *Store) DeleteAllRaw(destination string) error {
	dir := filepath.Join(s.basePath, sanitize(strings.ToLower(destination)))
	return os.RemoveAll(dir)
}
