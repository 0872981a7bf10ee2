// Package template validates message templates against the template-type
// catalog and resolves {{variable}} placeholders at send time.
package template

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"comply/internal/model"
)

// Store persists template records. The sqlite implementation lives in
// internal/storage; tests use the in-memory one below.
type Store interface {
	PutTemplate(t model.Template) error
	GetTemplate(id string) (model.Template, bool, error)
	ListTemplates() ([]model.Template, error)
}

// ErrTemplateNotFound is returned when applying a template id that does not
// exist in the store.
var ErrTemplateNotFound = fmt.Errorf("template not found")

// Result is the outcome of validating one template.
type Result struct {
	IsValid   bool     `json:"is_valid"`
	Errors    []string `json:"errors"`
	Variables []string `json:"variables"`
}

// Engine validates, creates and applies templates.
type Engine struct {
	types map[string]Type
	store Store
	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDFunc injects an id generator, for tests.
func WithIDFunc(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine returns an engine over the built-in template-type catalog.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		types: builtinTypes(),
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TypeByName looks up a template type in the catalog.
func (e *Engine) TypeByName(name string) (Type, bool) {
	t, ok := e.types[name]
	return t, ok
}

// Validate checks a template against its type's constraints. An unknown type
// is a catalog misconfiguration and returned as an error rather than a rule
// violation.
func (e *Engine) Validate(tmpl model.Template) (Result, error) {
	tt, ok := e.types[tmpl.Type]
	if !ok {
		return Result{}, fmt.Errorf("invalid template type: %s", tmpl.Type)
	}

	var errs []string
	vars := ExtractVariables(tmpl.Text)

	if utf8.RuneCountInString(tmpl.Text) > tt.MaxLength {
		errs = append(errs, fmt.Sprintf("Template exceeds maximum length of %d characters", tt.MaxLength))
	}
	if len(vars) > MaxVariables {
		errs = append(errs, fmt.Sprintf("Template cannot have more than %d variables", MaxVariables))
	}
	if strings.ContainsAny(tmpl.Text, "<>") {
		errs = append(errs, "Template cannot contain HTML-like tags")
	}
	if !tt.allowsCountry(tmpl.Country) {
		errs = append(errs, fmt.Sprintf("Template type %s is not available in %s", tmpl.Type, tmpl.Country))
	}
	if utf8.RuneCountInString(tmpl.Name) < 3 {
		errs = append(errs, "Template name must be at least 3 characters long")
	}
	if tmpl.Category == "" {
		errs = append(errs, "Template category is required")
	}

	return Result{IsValid: len(errs) == 0, Errors: errs, Variables: vars}, nil
}

// Create validates the template, assigns an id and derived variables, and
// stores it. Types requiring approval start pending; others are active
// immediately.
func (e *Engine) Create(tmpl model.Template) (model.Template, Result, error) {
	res, err := e.Validate(tmpl)
	if err != nil {
		return model.Template{}, Result{}, err
	}
	if !res.IsValid {
		return model.Template{}, res, nil
	}

	tt := e.types[tmpl.Type]
	tmpl.ID = e.newID()
	tmpl.Variables = res.Variables
	tmpl.CreatedAt = e.now()
	tmpl.Status = StatusActive
	if tt.RequiresApproval {
		tmpl.Status = StatusPending
	}
	if err := e.store.PutTemplate(tmpl); err != nil {
		return model.Template{}, Result{}, fmt.Errorf("store template: %w", err)
	}
	return tmpl, res, nil
}

// Apply substitutes the supplied values into the template text. Placeholders
// without a value are left literal.
func Apply(tmpl model.Template, vars map[string]string) string {
	return substitute(tmpl.Text, vars)
}

// ApplyByID loads a template from the store and applies the variables.
func (e *Engine) ApplyByID(id string, vars map[string]string) (string, error) {
	tmpl, ok, err := e.store.GetTemplate(id)
	if err != nil {
		return "", fmt.Errorf("load template: %w", err)
	}
	if !ok {
		return "", ErrTemplateNotFound
	}
	return Apply(tmpl, vars), nil
}

// Get exposes store lookup to collaborators (the validation pipeline needs
// the declared variable list).
func (e *Engine) Get(id string) (model.Template, bool, error) {
	return e.store.GetTemplate(id)
}

// List returns all stored templates.
func (e *Engine) List() ([]model.Template, error) {
	return e.store.ListTemplates()
}

// MemoryStore is a map-backed Store for tests and catalog-less deployments.
type MemoryStore struct {
	templates map[string]model.Template
}

// NewMemoryStore returns an empty in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string]model.Template)}
}

func (m *MemoryStore) PutTemplate(t model.Template) error {
	m.templates[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTemplate(id string) (model.Template, bool, error) {
	t, ok := m.templates[id]
	return t, ok, nil
}

func (m *MemoryStore) ListTemplates() ([]model.Template, error) {
	out := make([]model.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}
