package relay

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdoutRelay 把出站邮件打印到标准输出，用于开发环境。
type StdoutRelay struct {
	writer io.Writer
}

// NewStdoutRelay 创建 stdout 投递后端
func NewStdoutRelay() *StdoutRelay {
	return &StdoutRelay{writer: os.Stdout}
}

// NewStdoutRelayWithWriter 写入指定 writer，测试时使用
func NewStdoutRelayWithWriter(w io.Writer) *StdoutRelay {
	return &StdoutRelay{writer: w}
}

// Send 打印邮件内容，始终成功。
func (r *StdoutRelay) Send(_ context.Context, msg *Message) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("From: %s\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(msg.To, ", ")))

	if len(msg.Raw) > 0 {
		b.WriteString(fmt.Sprintf("Raw message (%d bytes)\n", len(msg.Raw)))
	} else {
		b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
		b.WriteString("Body:\n")
		body := msg.TextBody
		if body == "" {
			body = msg.HTMLBody
		}
		b.WriteString(body + "\n")
		if len(msg.Attachments) > 0 {
			names := make([]string, 0, len(msg.Attachments))
			for _, att := range msg.Attachments {
				names = append(names, fmt.Sprintf("%s (%d bytes)", att.Filename, len(att.Content)))
			}
			b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(names, ", ")))
		}
	}
	b.WriteString("========================================\n")

	fmt.Fprint(r.writer, b.String())
	return nil
}

// Name 返回投递后端名称
func (r *StdoutRelay) Name() string {
	return "stdout"
}
