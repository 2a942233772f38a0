package adapter

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/sequentech/message-otp/internal/auth"
	"github.com/sequentech/message-otp/internal/domain"
)

// DefaultMessages holds the built-in texts. Placeholders {0}, {1} and {2}
// take the realm name, the code and the lifetime in minutes.
var DefaultMessages = map[string]string{
	auth.SMSCodeMessageKey: "{1} is your {0} verification code. It expires in {2} minutes.",
	auth.EmailSubjectKey:   "{0} verification code",
}

const defaultEmailTemplate = `<p>Your {{.RealmName}} verification code is:</p>
<p><strong>{{.Code}}</strong></p>
<p>It expires in {{.TTLMinutes}} minutes. If you did not request it, ignore this email.</p>
`

// Catalog renders message keys and email templates for delivery.
type Catalog struct {
	texts     map[string]string
	templates *template.Template
}

// NewCatalog builds a catalog from texts, which override DefaultMessages.
// The email code template is always available under auth.EmailCodeTemplate.
func NewCatalog(texts map[string]string) (*Catalog, error) {
	merged := make(map[string]string, len(DefaultMessages)+len(texts))
	for k, v := range DefaultMessages {
		merged[k] = v
	}
	for k, v := range texts {
		merged[k] = v
	}

	tmpl, err := template.New(auth.EmailCodeTemplate).Parse(defaultEmailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email template: %w", err)
	}
	return &Catalog{texts: merged, templates: tmpl}, nil
}

// Text formats key with positional args.
func (c *Catalog) Text(key string, args []string) (string, error) {
	format, ok := c.texts[key]
	if !ok {
		return "", fmt.Errorf("unknown message key %q: %w", key, domain.ErrInvalidInput)
	}

	pairs := make([]string, 0, 2*len(args))
	for i, a := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", a)
	}
	return strings.NewReplacer(pairs...).Replace(format), nil
}

// emailData is what the email template sees, taken from Message.Args.
type emailData struct {
	RealmName  string
	Code       string
	TTLMinutes string
}

// HTML renders the named email template. args follow Message.Args.
func (c *Catalog) HTML(name string, args []string) (string, error) {
	var data emailData
	if len(args) > 0 {
		data.RealmName = args[0]
	}
	if len(args) > 1 {
		data.Code = args[1]
	}
	if len(args) > 2 {
		data.TTLMinutes = args[2]
	}

	var buf bytes.Buffer
	if err := c.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
