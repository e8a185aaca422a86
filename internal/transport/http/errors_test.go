package httptransport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/service"
)

func TestGetErrorMessage(t *testing.T) {
	// 直接命中
	assert.Equal(t, "地址不存在或已过期", GetErrorMessage(domain.ErrAddressNotFound))

	// 包装过的业务错误同样命中
	wrapped := fmt.Errorf("%w: %q", service.ErrInvalidAttachment, "report.pdf")
	assert.Equal(t, "附件内容不是合法的 base64", GetErrorMessage(wrapped))

	// 未知错误原样返回
	assert.Equal(t, "boom", GetErrorMessage(errors.New("boom")))
}
