package speaker

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"fmt"
	"os"
	"text/template"
)

//go:embed hk_request_template.xml
var defaultTemplateText string

// Template slot names.
const (
	slotAction = "action"
	slotZone   = "zone"
	slotPara   = "para"
)

// Template renders request payloads.
//
// The template text is a Go text/template with exactly three slots:
// {{.action}}, {{.zone}} and {{.para}}. A template that leaves one out or
// references any other field is rejected when parsed.
type Template struct {
	tmpl *template.Template
}

// ParseTemplate parses template text and verifies it uses each of the
// action, zone and para slots and nothing else.
func ParseTemplate(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	// Rendering marker values surfaces unknown slots (missingkey=error)
	// and shows which slots actually reach the output.
	markers := map[string]string{
		slotAction: "\x01" + slotAction + "\x01",
		slotZone:   "\x01" + slotZone + "\x01",
		slotPara:   "\x01" + slotPara + "\x01",
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, markers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	for _, slot := range []string{slotAction, slotZone, slotPara} {
		if !bytes.Contains(buf.Bytes(), []byte(markers[slot])) {
			return nil, fmt.Errorf("%w: slot {{.%s}} is not used", ErrInvalidTemplate, slot)
		}
	}

	return &Template{tmpl: tmpl}, nil
}

// LoadTemplateFile reads and parses a template from disk.
func LoadTemplateFile(path string) (*Template, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("reading request template: %w", err)
	}
	return ParseTemplate(path, string(data))
}

// DefaultTemplate returns the embedded request template.
func DefaultTemplate() *Template {
	t, err := ParseTemplate("hk_request_template.xml", defaultTemplateText)
	if err != nil {
		// The embedded template is part of the build.
		panic(err)
	}
	return t
}

// Render fills the three slots. Values are XML-escaped.
func (t *Template) Render(action, zone, para string) ([]byte, error) {
	data := map[string]string{
		slotAction: escapeXML(action),
		slotZone:   escapeXML(zone),
		slotPara:   escapeXML(para),
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering request: %w", err)
	}
	return buf.Bytes(), nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	// EscapeText only fails when the writer fails.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
