package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/budget"
)

// Collection names in the document store.
const (
	CollectionPromotions      = "promotions"
	CollectionNotes           = "notes"
	CollectionBudgets         = "budgets"
	CollectionAuthorizedUsers = "authorized_users"
)

// ItemType is the presentation discriminant of a promotion.
type ItemType string

const (
	TypePlan  ItemType = "plan"
	TypeText  ItemType = "text"
	TypeImage ItemType = "image"
	TypePrice ItemType = "price"
)

// ItemTypes lists the valid promotion types in display order.
var ItemTypes = []ItemType{TypePlan, TypeText, TypeImage, TypePrice}

// Valid reports whether t is a known type.
func (t ItemType) Valid() bool {
	switch t {
	case TypePlan, TypeText, TypeImage, TypePrice:
		return true
	}
	return false
}

// Label returns the section heading used when rendering grouped results.
func (t ItemType) Label() string {
	switch t {
	case TypePlan:
		return "Planes"
	case TypeText:
		return "Textos"
	case TypeImage:
		return "Imágenes"
	case TypePrice:
		return "Precios"
	}
	return string(t)
}

// Roles for authorized users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Plan is a priced offer inside a promotion.
type Plan struct {
	Name            string          `json:"name" toml:"name"`
	Description     string          `json:"description,omitempty" toml:"description,omitempty"`
	ListPrice       decimal.Decimal `json:"listPrice" toml:"list_price"`
	MonthlyDiscount decimal.Decimal `json:"monthlyDiscount" toml:"monthly_discount"`
	FinalPrice      decimal.Decimal `json:"finalPrice" toml:"final_price"`
}

// Benefit is an extra attached to a promotion.
type Benefit struct {
	Title       string `json:"title" toml:"title"`
	Description string `json:"description,omitempty" toml:"description,omitempty"`
	Duration    string `json:"duration,omitempty" toml:"duration,omitempty"`
}

// Promotion is a browsable offer. Keywords is derived from Title and
// Description and must be recomputed whenever either changes.
type Promotion struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        ItemType        `json:"type"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Plans       []Plan          `json:"plans"`
	Benefits    []Benefit       `json:"benefits"`
	Keywords    []string        `json:"-"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	UpdatedAt   int64           `json:"updatedAt"`
}

// Note is a personal note owned by one user.
type Note struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Keywords  []string `json:"-"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

// SavedBudget is a quote persisted in the remote store.
type SavedBudget struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Name      string            `json:"name"`
	Items     []budget.LineItem `json:"items"`
	Total     decimal.Decimal   `json:"total"`
	CreatedAt int64             `json:"createdAt"`
	UpdatedAt int64             `json:"updatedAt"`
}

// AuthorizedUser is an allow-list entry keyed by normalized email.
type AuthorizedUser struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Principal is the authenticated identity returned by the identity provider.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// NewNote builds a note with its keyword set.
func NewNote(userID, title, content string, now int64) Note {
	return Note{
		UserID:    userID,
		Title:     title,
		Content:   content,
		Keywords:  NoteKeywords(title, content),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewAuthorizedUser builds an allow-list entry, defaulting the role to user.
func NewAuthorizedUser(email, role, name string, now int64) AuthorizedUser {
	if role == "" {
		role = RoleUser
	}
	return AuthorizedUser{
		Email:     NormalizeEmail(email),
		Role:      role,
		Name:      name,
		CreatedAt: now,
	}
}

// FindPlan returns the plan with the given name (case-insensitive).
func FindPlan(p Promotion, name string) (Plan, bool) {
	want := Normalize(name)
	for _, plan := range p.Plans {
		if Normalize(plan.Name) == want {
			return plan, true
		}
	}
	return Plan{}, false
}
