package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	appfs "github.com/trezcool/academia/fs"
)

func TestConsoleServiceMock(t *testing.T) {
	require.NoError(t, core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true))
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf)
	ResetSentMessages()

	to := mail.Address{Name: "Jane", Address: "jane@example.com"}
	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{to},
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]string{"Name": "Jane", "UID": "uid", "Token": "tok"},
		},
		&core.EmailMessage{To: []mail.Address{to}, Subject: "Plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "No recipients", BodyStr: "ignored"},
		&core.EmailMessage{To: []mail.Address{to}, Subject: "No content"},
	)

	msgs := SentMessages()
	require.Len(t, msgs, 2)

	assert.Equal(t, "Password Reset", msgs[0].Subject)
	assert.True(t, strings.Contains(msgs[0].TextContent, conf.FrontendBaseURL+"/password-reset/uid/tok"))
	assert.NotEmpty(t, msgs[0].HTMLContent)

	assert.Equal(t, "hello", msgs[1].TextContent)
	assert.Empty(t, msgs[1].HTMLContent)

	ResetSentMessages()
	assert.Empty(t, SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	svc := consoleService{defaultFromEmail: mail.Address{Address: "noreply@localhost"}, subjPrefix: "[Academia] ", disableOutput: true}
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "a@example.com"}},
		Subject:     "Report",
		TextContent: "see attached",
	}

	raw, err := svc.format(msg)
	require.NoError(t, err)
	assert.Contains(t, raw, "From: <noreply@localhost>\r\n")
	assert.Contains(t, raw, "Subject: [Academia] Report\r\n")
	assert.NotContains(t, raw, "Cc:")
	assert.Contains(t, raw, "Content-Type: multipart/alternative")
	assert.NotContains(t, raw, "text/html")

	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "report.csv", "text/csv"))
	raw, err = svc.format(msg)
	require.NoError(t, err)
	assert.Contains(t, raw, "Content-Type: multipart/mixed")
	assert.Contains(t, raw, `attachment; filename="report.csv"`)
	assert.Contains(t, raw, "YSxiCjEsMgo=")
	assert.NoError(t, svc.send(msg))
}
