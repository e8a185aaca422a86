package pipeline

import (
	"bytes"
	"fmt"
	"strings"
)

var crlf = []byte("\r\n")

// rewriteFrom 把原始邮件的 From 头替换为 newFrom，其余内容原样保留。
//
// 只处理首部区(第一个空行之前),续行一并移除;原文没有 From 头
// 时直接补一个。
func rewriteFrom(raw []byte, newFrom string) []byte {
	headers, body := splitMessage(raw)

	lines := bytes.Split(headers, crlf)
	out := make([][]byte, 0, len(lines)+1)
	out = append(out, []byte(fmt.Sprintf("From: %s", newFrom)))

	skipping := false
	for _, line := range lines {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			// 续行跟随上一个头的去留
			if skipping {
				continue
			}
			out = append(out, line)
			continue
		}
		if hasHeaderName(line, "From") {
			skipping = true
			continue
		}
		skipping = false
		out = append(out, line)
	}

	var buf bytes.Buffer
	buf.Write(bytes.Join(out, crlf))
	buf.Write(crlf)
	buf.Write(crlf)
	buf.Write(body)
	return buf.Bytes()
}

// splitMessage 在第一个空行处把报文切成首部区和正文
func splitMessage(raw []byte) (headers, body []byte) {
	normalized := normalizeNewlines(raw)
	if i := bytes.Index(normalized, []byte("\r\n\r\n")); i >= 0 {
		return normalized[:i], normalized[i+4:]
	}
	return normalized, nil
}

// normalizeNewlines 把裸 LF 统一为 CRLF
func normalizeNewlines(raw []byte) []byte {
	if !bytes.Contains(raw, []byte("\n")) || bytes.Contains(raw, crlf) {
		return raw
	}
	return bytes.ReplaceAll(raw, []byte("\n"), crlf)
}

// hasHeaderName 判断一行是否为指定名字的邮件头
func hasHeaderName(line []byte, name string) bool {
	prefix := name + ":"
	return len(line) >= len(prefix) &&
		strings.EqualFold(string(line[:len(prefix)]), prefix)
}
