package smtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmailPlainText(t *testing.T) {
	raw := []byte("From: a@b.example\r\nTo: c@d.example\r\nSubject: hello\r\n\r\nplain body")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", parsed.Subject)
	assert.Equal(t, "a@b.example", parsed.From)
	assert.Equal(t, "plain body", parsed.Text)
}

func TestParseEmailEncodedSubject(t *testing.T) {
	raw := []byte("From: a@b.example\r\nSubject: =?utf-8?b?5L2g5aW9?=\r\n\r\nbody")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "你好", parsed.Subject)
}

func TestParseEmailMultipartAlternative(t *testing.T) {
	raw := []byte("From: a@b.example\r\n" +
		"Subject: multi\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain part\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html part</p>\r\n" +
		"--XYZ--\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain part", parsed.Text)
	assert.Equal(t, "<p>html part</p>", parsed.HTML)
}

func TestParseEmailQuotedPrintable(t *testing.T) {
	raw := []byte("From: a@b.example\r\n" +
		"Subject: qp\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=C3=A9")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "café", parsed.Text)
}

func TestParseEmailSkipsAttachments(t *testing.T) {
	raw := []byte("From: a@b.example\r\n" +
		"Subject: att\r\n" +
		"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see attached\r\n" +
		"--XYZ\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment; filename=a.bin\r\n" +
		"\r\n" +
		"BINARYDATA\r\n" +
		"--XYZ--\r\n")

	parsed, err := ParseEmail(raw)
	require.NoError(t, err)
	assert.Equal(t, "see attached", parsed.Text)
	assert.NotContains(t, parsed.Text, "BINARYDATA")
}

func TestParseEmailMalformed(t *testing.T) {
	_, err := ParseEmail([]byte("not an email at all"))
	assert.Error(t, err)
}
