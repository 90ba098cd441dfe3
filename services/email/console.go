package emailsvc

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	sentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

// SentMessages returns a copy of every message sent by console services.
func SentMessages() []core.EmailMessage {
	mu.Lock()
	defer mu.Unlock()
	msgs := make([]core.EmailMessage, len(sentMessages))
	copy(msgs, sentMessages)
	return msgs
}

func ResetSentMessages() {
	mu.Lock()
	sentMessages = make([]core.EmailMessage, 0)
	mu.Unlock()
}

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	frontendBaseURL  string
	logger           core.Logger
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService prints emails to the logger instead of sending them.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail(),
		subjPrefix:       "[" + conf.AppName + "] ",
		frontendBaseURL:  conf.FrontendBaseURL,
		logger:           logger,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(svc.frontendBaseURL); err != nil {
		svc.logError(errors.Wrap(err, "rendering email"))
		return
	}
	if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
		if err := svc.send(*msg); err != nil {
			svc.logError(err)
			return
		}
		mu.Lock()
		sentMessages = append(sentMessages, *msg)
		mu.Unlock()
	}
}

func (svc consoleService) logError(err error) {
	if svc.logger != nil {
		svc.logger.Error(err.Error(), err)
	}
}

func (svc consoleService) send(msg core.EmailMessage) error {
	raw, err := svc.format(msg)
	if err != nil {
		return errors.Wrap(err, "formatting email")
	}
	if !svc.disableOutput && svc.logger != nil {
		svc.logger.Info(raw)
	}
	return nil
}

// format renders msg as a MIME message: the text & HTML alternatives, wrapped in a mixed part
// along with the attachments when there are any.
func (svc consoleService) format(msg core.EmailMessage) (string, error) {
	var body bytes.Buffer
	header := []struct{ key, value string }{
		{"From", svc.defaultFromEmail.String()},
		{"To", joinAddresses(msg.To)},
		{"Cc", joinAddresses(msg.Cc)},
		{"Subject", svc.subjPrefix + msg.Subject},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
	}
	for _, h := range header {
		if h.value != "" {
			_, _ = fmt.Fprintf(&body, "%s: %s\r\n", h.key, h.value)
		}
	}

	var alt bytes.Buffer
	altW := multipart.NewWriter(&alt)
	parts := []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", msg.TextContent},
		{"text/html; charset=utf-8", msg.HTMLContent},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return "", err
		}
		_, _ = io.WriteString(w, p.content+"\r\n")
	}
	if err := altW.Close(); err != nil {
		return "", err
	}
	altType := "multipart/alternative; boundary=" + altW.Boundary()

	if !msg.HasAttachments() {
		_, _ = fmt.Fprintf(&body, "Content-Type: %s\r\n\r\n", altType)
		body.Write(alt.Bytes())
		return body.String(), nil
	}

	var mixed bytes.Buffer
	mixedW := multipart.NewWriter(&mixed)
	w, err := mixedW.CreatePart(textproto.MIMEHeader{"Content-Type": {altType}})
	if err != nil {
		return "", err
	}
	_, _ = w.Write(alt.Bytes())
	for _, at := range msg.Attachments {
		w, err = mixedW.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {at.ContentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", at.Filename)},
		})
		if err != nil {
			return "", err
		}
		_, _ = io.WriteString(w, at.Content.String()+"\r\n")
	}
	if err = mixedW.Close(); err != nil {
		return "", err
	}
	_, _ = fmt.Fprintf(&body, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mixedW.Boundary())
	body.Write(mixed.Bytes())
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

type consoleServiceMock struct {
	consoleService
}

// NewConsoleServiceMock sends synchronously and prints nothing. Sent messages are kept for assertions.
func NewConsoleServiceMock(conf *core.Config) core.EmailService {
	return &consoleServiceMock{
		consoleService: consoleService{
			defaultFromEmail: conf.DefaultFromEmail(),
			subjPrefix:       "[" + conf.AppName + "] ",
			frontendBaseURL:  conf.FrontendBaseURL,
			disableOutput:    true,
		},
	}
}

func (svc *consoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}
