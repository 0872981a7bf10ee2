// Package pipeline runs a candidate message through every compliance check
// and returns one combined verdict. Rule violations accumulate so callers
// see every defect at once; only a catalog miss short-circuits.
package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"comply/internal/model"
	"comply/internal/msgtype"
	"comply/internal/session"
	"comply/internal/ttl"
)

// TemplateLookup resolves a template id to its record. Satisfied by
// template.Engine.
type TemplateLookup interface {
	Get(id string) (model.Template, bool, error)
}

// Context carries caller-supplied state for one validation run.
type Context struct {
	// Session is the recipient's current session verdict, when session
	// gating applies to this send. Nil skips the session check.
	Session *session.Validation
}

// Result is the pipeline verdict. Warnings are advisory and never affect
// IsValid.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Pipeline orchestrates the type registry, template engine, TTL policy and
// session verdicts into a single authorize/reject decision.
type Pipeline struct {
	types     *msgtype.Registry
	templates TemplateLookup
}

// New returns a pipeline over the given catalogs.
func New(types *msgtype.Registry, templates TemplateLookup) *Pipeline {
	return &Pipeline{types: types, templates: templates}
}

// Validate runs all checks for one candidate message.
func (p *Pipeline) Validate(msg model.CandidateMessage, ctx Context) Result {
	var errs, warns []string

	spec, ok := p.types.Lookup(msg.TypeCode)
	if !ok {
		// Unknown type is a catalog misconfiguration; nothing below can run.
		return Result{
			IsValid: false,
			Errors:  []string{fmt.Sprintf("Invalid message type: %d", msg.TypeCode)},
		}
	}

	if msg.Text != "" {
		errs = append(errs, checkText(msg.Text, spec)...)
	} else if spec.TextRequired {
		errs = append(errs, "Text is required for this message type")
	}
	if msg.File != nil {
		errs = append(errs, checkFile(msg.File, spec)...)
	}
	if msg.Button != nil {
		errs = append(errs, checkButton(msg.Button, spec)...)
	}
	if msg.TemplateID != "" {
		errs = append(errs, p.checkTemplate(msg.TemplateID, msg.Variables)...)
	}
	if msg.TTL != "" && !ttl.Validate(msg.TTL) {
		errs = append(errs, fmt.Sprintf("TTL must be between %d seconds and %d seconds", ttl.Min, ttl.Max))
	}
	if ctx.Session != nil && !ctx.Session.Valid {
		errs = append(errs, "Session constraint: "+ctx.Session.Reason)
	}
	if msg.Recipient != "" && !validRecipient(msg.Recipient) {
		errs = append(errs, "Invalid phone number format")
	}

	if utf8.RuneCountInString(msg.Text) > 500 {
		warns = append(warns, "Long messages may have lower engagement rates")
	}
	if spec.AllowsButtons() && msg.Button == nil {
		warns = append(warns, "Adding a button could improve conversion rates")
	}

	return Result{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func checkText(text string, spec msgtype.Spec) []string {
	var errs []string
	if spec.MaxTextLength > 0 && utf8.RuneCountInString(text) > spec.MaxTextLength {
		errs = append(errs, fmt.Sprintf("Text exceeds maximum length of %d characters", spec.MaxTextLength))
	}
	if !spec.AllowEmoji && containsEmoji(text) {
		errs = append(errs, "Emojis are not allowed in this message type")
	}
	if spec.AllowMarkdown {
		errs = append(errs, checkMarkdownBalance(text)...)
	} else if strings.ContainsAny(text, "*_`") {
		errs = append(errs, "Markdown formatting is not allowed in this message type")
	}
	return errs
}

func checkFile(f *model.FileMeta, spec msgtype.Spec) []string {
	if !spec.AllowsFiles() {
		return []string{"Files are not allowed in this message type"}
	}
	var errs []string
	name := strings.ToLower(f.Name)
	matched := false
	for _, ext := range spec.FileFormats {
		if strings.HasSuffix(name, strings.ToLower(ext)) {
			matched = true
			break
		}
	}
	if !matched {
		errs = append(errs, "Unsupported file format. Supported formats: "+strings.Join(spec.FileFormats, ", "))
	}
	if f.Size > spec.MaxFileSize {
		errs = append(errs, fmt.Sprintf("File size exceeds maximum of %dMB", spec.MaxFileSize/(1024*1024)))
	}
	if spec.MaxDurationSec > 0 && f.DurationSec > spec.MaxDurationSec {
		errs = append(errs, fmt.Sprintf("Video duration exceeds maximum of %d seconds", spec.MaxDurationSec))
	}
	if spec.RequiresThumbnail && !f.Thumbnail {
		errs = append(errs, "Video thumbnail is required")
	}
	if spec.FileNameMaxLength > 0 && utf8.RuneCountInString(f.Name) > spec.FileNameMaxLength {
		errs = append(errs, fmt.Sprintf("File name exceeds maximum length of %d characters", spec.FileNameMaxLength))
	}
	return errs
}

func checkButton(b *model.Button, spec msgtype.Spec) []string {
	if !spec.AllowsButtons() {
		return []string{"Buttons are not allowed in this message type"}
	}
	var errs []string
	if b.Caption == "" || utf8.RuneCountInString(b.Caption) > spec.Button.CaptionMaxLength {
		errs = append(errs, fmt.Sprintf("Button caption must be between 1 and %d characters", spec.Button.CaptionMaxLength))
	}
	if spec.Button.RequiresAction && b.Action == "" {
		errs = append(errs, "Button action is required")
	}
	return errs
}

func (p *Pipeline) checkTemplate(id string, vars map[string]string) []string {
	tmpl, ok, err := p.templates.Get(id)
	if err != nil || !ok {
		return []string{"Invalid template reference"}
	}
	var missing []string
	for _, name := range tmpl.Variables {
		if vars[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return []string{"Missing required variables: " + strings.Join(missing, ", ")}
	}
	return nil
}

// validRecipient checks the E.164-like pattern: optional +, first digit 1-9,
// 2 to 15 digits total. Spaces and dashes are stripped first.
func validRecipient(recipient string) bool {
	var digits []byte
	for i := 0; i < len(recipient); i++ {
		switch c := recipient[i]; {
		case c == ' ' || c == '-':
			// separators tolerated anywhere
		case c == '+':
			if len(digits) != 0 || i != 0 {
				return false
			}
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		default:
			return false
		}
	}
	if len(digits) < 2 || len(digits) > 15 {
		return false
	}
	return digits[0] >= '1' && digits[0] <= '9'
}

// containsEmoji reports whether text holds code points in the main emoji
// blocks (U+1F300 through U+1F9FF).
func containsEmoji(text string) bool {
	for _, r := range text {
		if r >= 0x1F300 && r <= 0x1F9FF {
			return true
		}
	}
	return false
}

// checkMarkdownBalance flags unpaired *, _ and ` markers, the one
// malformation the provider renders as garbage.
func checkMarkdownBalance(text string) []string {
	var errs []string
	for _, marker := range []rune{'*', '_', '`'} {
		count := 0
		for _, r := range text {
			if r == marker {
				count++
			}
		}
		if count%2 != 0 {
			errs = append(errs, fmt.Sprintf("Unbalanced markdown marker: %c", marker))
		}
	}
	return errs
}
