package template

// Type is the immutable constraint set for one template type.
type Type struct {
	Code             int
	Name             string
	Label            string
	Description      string
	MaxLength        int
	RequiresApproval bool
	RequiresOptIn    bool
	AllowedCountries []string // nil = no country restriction
}

// Template type names. Codes are part of the provider contract.
const (
	TypeTransactional = "TRANSACTIONAL"
	TypeSession       = "SESSION"
	TypeConversion    = "CONVERSION"
)

// Template statuses. Types requiring approval start pending.
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// MaxVariables caps placeholders per template.
const MaxVariables = 10

func builtinTypes() map[string]Type {
	return map[string]Type{
		TypeTransactional: {
			Code:             301,
			Name:             TypeTransactional,
			Label:            "Transactional",
			Description:      "For service updates and notifications",
			MaxLength:        950,
			RequiresApproval: true,
			AllowedCountries: []string{"Russia", "Ukraine", "Belarus"},
		},
		TypeSession: {
			Code:        303,
			Name:        TypeSession,
			Label:       "Session",
			Description: "For active chat sessions",
			MaxLength:   1000,
		},
		TypeConversion: {
			Code:             304,
			Name:             TypeConversion,
			Label:            "Conversion",
			Description:      "For marketing and promotional messages",
			MaxLength:        1000,
			RequiresApproval: true,
			RequiresOptIn:    true,
		},
	}
}

func (t Type) allowsCountry(country string) bool {
	if len(t.AllowedCountries) == 0 {
		return true
	}
	for _, c := range t.AllowedCountries {
		if c == country {
			return true
		}
	}
	return false
}
