package campaign

// Campaign type names. Codes and message-code sets are part of the provider
// contract.
const (
	TypeTransactional = "TRANSACTIONAL"
	TypePromotional   = "PROMOTIONAL"
	TypeSession       = "SESSION"
)

// Type is the immutable feature set for one campaign type.
type Type struct {
	Code                 int
	Name                 string
	Label                string
	Description          string
	MessageCodes         []int
	Priority             string
	DefaultTTL           int64 // seconds
	MaxTTL               int64 // seconds
	Pricing              string
	AllowedRegions       []string
	RequiresOptIn        bool
	SessionDuration      int64 // seconds, session type only
	MaxMessages          int   // session type only
	MaxConsecutive       int   // session type only
	RequiresUserResponse bool
}

func builtinTypes() map[string]Type {
	return map[string]Type{
		TypeTransactional: {
			Code:           301,
			Name:           TypeTransactional,
			Label:          "Transactional",
			Description:    "For essential business communications",
			MessageCodes:   []int{106, 206, 301},
			Priority:       "high",
			DefaultTTL:     3600,
			MaxTTL:         86400,
			Pricing:        "premium",
			AllowedRegions: []string{"Russia", "Ukraine", "Belarus"},
		},
		TypePromotional: {
			Code:          207,
			Name:          TypePromotional,
			Label:         "Promotional",
			Description:   "For marketing and promotional content",
			MessageCodes:  []int{207, 208, 209},
			Priority:      "normal",
			DefaultTTL:    86400,
			MaxTTL:        604800,
			Pricing:       "standard",
			RequiresOptIn: true,
		},
		TypeSession: {
			Code:                 306,
			Name:                 TypeSession,
			Label:                "Session",
			Description:          "For interactive conversations",
			MessageCodes:         []int{306, 307},
			Priority:             "normal",
			SessionDuration:      86400,
			MaxMessages:          60,
			MaxConsecutive:       10,
			Pricing:              "session-based",
			RequiresUserResponse: true,
		},
	}
}
