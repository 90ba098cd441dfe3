package core

import (
	"bytes"
	"encoding/base64"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	Attachment struct {
		Content     *bytes.Buffer // base64 encoded
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain, non-templated content
		Attachments []Attachment

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is what email templates are executed with.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// emailTemplate holds both renditions of a template; either may be nil.
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
)

var emailTemplates = struct {
	sync.RWMutex
	byName map[string]emailTemplate
}{}

func lookupTemplate(name string) (emailTemplate, bool) {
	emailTemplates.RLock()
	defer emailTemplates.RUnlock()
	t, ok := emailTemplates.byName[name]
	return t, ok
}

// Render fills TextContent & HTMLContent; baseURL is the frontend base URL exposed to templates.
// BodyStr takes precedence over the text template.
func (m *EmailMessage) Render(baseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}
	tmpl, ok := lookupTemplate(m.TemplateName)
	if !ok {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	data := ContextData{FrontendBaseURL: baseURL, Data: m.TemplateData}
	var buff bytes.Buffer
	if tmpl.text != nil && m.BodyStr == "" {
		if err := tmpl.text.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering text")
		}
		m.TextContent = buff.String()
		buff.Reset()
	}
	if tmpl.html != nil {
		if err := tmpl.html.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering HTML")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

// Attach reads r and attaches its content as filename.
// The content type is sniffed unless given.
func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "reading attachment %s", filename)
	}

	contentType := http.DetectContentType(content)
	if len(ct) > 0 && ct[0] != "" {
		contentType = ct[0]
	}
	encoded := base64.StdEncoding.EncodeToString(content)
	m.Attachments = append(m.Attachments, Attachment{
		Content:     bytes.NewBufferString(encoded),
		ContentType: contentType,
		Filename:    filename,
	})
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }

// ParseEmailTemplates parses every `<name>.txt` and `<name>.gohtml` template found in dir,
// each one along with its `_base` layout. strict makes templates fail on missing keys.
func ParseEmailTemplates(fsys fs.FS, dir string, strict bool) error {
	fps, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		return errors.Wrap(err, "listing email templates")
	}
	missingKey := "missingkey=default"
	if strict {
		missingKey = "missingkey=error"
	}

	parsed := make(map[string]emailTemplate)
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue // layouts
		}
		ext := path.Ext(fname)
		name := strings.TrimSuffix(fname, ext)
		tmpl := parsed[name]

		switch ext {
		case ".txt":
			tmpl.text, err = texttmpl.ParseFS(fsys, path.Join(dir, "_base.txt"), fp)
			if err == nil {
				tmpl.text.Option(missingKey)
			}
		case ".gohtml":
			tmpl.html, err = htmltmpl.ParseFS(fsys, path.Join(dir, "_base.gohtml"), fp)
			if err == nil {
				tmpl.html.Option(missingKey)
			}
		default:
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "parsing %s", fp)
		}
		parsed[name] = tmpl
	}

	emailTemplates.Lock()
	emailTemplates.byName = parsed
	emailTemplates.Unlock()
	return nil
}
