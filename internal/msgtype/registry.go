// Package msgtype catalogs the provider message types and their structural
// constraints. Type codes are part of the provider wire contract and must
// not change.
package msgtype

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"comply/internal/model"
)

const maxMediaSize = 200 * 1024 * 1024 // 200MB, provider-wide cap

// ButtonSpec constrains an inline action button.
type ButtonSpec struct {
	CaptionMaxLength int  `yaml:"caption_max_length"`
	RequiresAction   bool `yaml:"requires_action"`
}

// Spec is the immutable constraint set for one message type.
// A nil FileFormats slice means files are not allowed; a nil Button means
// buttons are not allowed.
type Spec struct {
	Code              int         `yaml:"code"`
	Name              string      `yaml:"name"`
	Label             string      `yaml:"label"`
	Category          string      `yaml:"category"`
	MaxTextLength     int         `yaml:"max_text_length"`
	TextRequired      bool        `yaml:"text_required"`
	AllowMarkdown     bool        `yaml:"allow_markdown"`
	AllowEmoji        bool        `yaml:"allow_emoji"`
	FileFormats       []string    `yaml:"file_formats"`
	MaxFileSize       int64       `yaml:"max_file_size"`
	MaxDurationSec    int         `yaml:"max_duration_sec"`
	RequiresThumbnail bool        `yaml:"requires_thumbnail"`
	FileNameMaxLength int         `yaml:"file_name_max_length"`
	Button            *ButtonSpec `yaml:"button"`
}

// AllowsFiles reports whether the type accepts file attachments.
func (s Spec) AllowsFiles() bool { return len(s.FileFormats) > 0 }

// AllowsButtons reports whether the type accepts an action button.
func (s Spec) AllowsButtons() bool { return s.Button != nil }

// Registry is a read-only lookup of message type specs by code.
type Registry struct {
	byCode map[int]Spec
}

// NewRegistry returns a registry preloaded with the provider's built-in
// message types.
func NewRegistry() *Registry {
	r := &Registry{byCode: make(map[int]Spec)}
	for _, s := range builtins() {
		r.byCode[s.Code] = s
	}
	return r
}

// Lookup returns the spec for a type code.
func (r *Registry) Lookup(code int) (Spec, bool) {
	s, ok := r.byCode[code]
	return s, ok
}

// All returns every registered spec ordered by code.
func (r *Registry) All() []Spec {
	out := make([]Spec, 0, len(r.byCode))
	for _, s := range r.byCode {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// LoadOverrides merges specs from a YAML file into the registry. Entries
// with a known code replace the built-in; new codes are added. Meant to run
// once at startup, before the registry is shared.
func (r *Registry) LoadOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read type catalog: %w", err)
	}
	var doc struct {
		Types []Spec `yaml:"types"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse type catalog: %w", err)
	}
	for _, s := range doc.Types {
		if s.Code == 0 {
			return fmt.Errorf("type catalog entry %q missing code", s.Name)
		}
		r.byCode[s.Code] = s
	}
	return nil
}

func builtins() []Spec {
	return []Spec{
		{
			Code:          206,
			Name:          "TEXT_ONLY",
			Label:         "Text Only",
			Category:      model.CategoryTransactional,
			MaxTextLength: 1000,
			AllowMarkdown: true,
			AllowEmoji:    true,
		},
		{
			Code:        207,
			Name:        "IMAGE_ONLY",
			Label:       "Image Only",
			Category:    model.CategoryPromotional,
			FileFormats: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"},
			MaxFileSize: maxMediaSize,
		},
		{
			Code:          208,
			Name:          "TEXT_IMAGE_BUTTON",
			Label:         "Text + Image + Button",
			Category:      model.CategoryPromotional,
			MaxTextLength: 1000,
			TextRequired:  true,
			FileFormats:   []string{".jpg", ".jpeg", ".png"},
			MaxFileSize:   maxMediaSize,
			Button:        &ButtonSpec{CaptionMaxLength: 30, RequiresAction: true},
		},
		{
			Code:     220,
			Name:     "FILE",
			Label:    "File Transfer",
			Category: model.CategoryTransactional,
			FileFormats: []string{
				// Documents
				".doc", ".docx", ".rtf", ".dot", ".dotx", ".odt", ".odf", ".fodt", ".txt", ".info",
				// PDFs
				".pdf", ".xps", ".pdax", ".eps",
				// Spreadsheets
				".xls", ".xlsx", ".ods", ".fods", ".csv", ".xlsm", ".xltx",
			},
			MaxFileSize:       maxMediaSize,
			FileNameMaxLength: 25,
		},
		{
			Code:              233,
			Name:              "VIDEO",
			Label:             "Video + Text + Action Button",
			Category:          model.CategoryPromotional,
			MaxTextLength:     1000,
			FileFormats:       []string{".mp4", ".m4v", ".mov"},
			MaxFileSize:       maxMediaSize,
			MaxDurationSec:    600,
			RequiresThumbnail: true,
			Button:            &ButtonSpec{CaptionMaxLength: 30, RequiresAction: true},
		},
		{
			Code:          306,
			Name:          "SESSION",
			Label:         "Session Message",
			Category:      model.CategorySession,
			MaxTextLength: 1000,
			AllowMarkdown: true,
			AllowEmoji:    true,
		},
		{
			Code:          307,
			Name:          "SESSION_REPLY",
			Label:         "Session Reply",
			Category:      model.CategorySession,
			MaxTextLength: 1000,
			AllowMarkdown: true,
			AllowEmoji:    true,
		},
	}
}
