package dom

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// inlineHandler matches the only inline handler form apps may use: a bare
// call to an exposed function, e.g. onclick="save()".
var (
	inlineHandler = regexp.MustCompile(`^\s*[A-Za-z_$][\w$]*\s*\(\s*\)\s*;?\s*$`)
	identifier    = regexp.MustCompile(`[A-Za-z_$][\w$]*`)
)

// InlineHandlerAttrs lists the inline handler attributes kept by the sanitizer
var InlineHandlerAttrs = []string{
	"onclick", "ondblclick", "onchange", "oninput", "onsubmit",
	"onkeydown", "onkeyup", "onfocus", "onblur",
	"onmousedown", "onmouseup", "onmouseover", "onmouseout",
}

// Sanitizer cleans app supplied markup before it enters the document
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds the app markup policy on top of bluemonday's UGC policy
func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowElements("button", "input", "select", "option", "textarea", "label",
		"form", "section", "header", "footer", "nav", "main", "aside", "canvas", "progress")
	p.AllowAttrs("id", "class", "name", "type", "value", "placeholder", "for",
		"disabled", "checked", "selected", "readonly", "min", "max", "step", "tabindex", "role").Globally()
	p.AllowDataAttributes()
	p.AllowAttrs(InlineHandlerAttrs...).Matching(inlineHandler).Globally()
	return &Sanitizer{policy: p}
}

// Sanitize returns markup with disallowed elements and attributes removed
func (s *Sanitizer) Sanitize(markup string) string {
	return s.policy.Sanitize(markup)
}

// InlineCall extracts the function name from an inline handler value
func InlineCall(value string) (string, bool) {
	if !inlineHandler.MatchString(value) {
		return "", false
	}
	m := identifier.FindString(value)
	return m, m != ""
}
