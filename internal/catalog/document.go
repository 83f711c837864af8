package catalog

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/ccpro/internal/budget"
)

// Document bodies. Identity, timestamps and keyword sets live in the store's
// own columns, so they are not repeated inside the JSON body.

type promotionDoc struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        ItemType        `json:"type"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Plans       []Plan          `json:"plans"`
	Benefits    []Benefit       `json:"benefits"`
	CreatedBy   string          `json:"createdBy,omitempty"`
}

type noteDoc struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type budgetDoc struct {
	UserID string            `json:"userId"`
	Name   string            `json:"name"`
	Items  []budget.LineItem `json:"items"`
	Total  decimal.Decimal   `json:"total"`
}

type authorizedUserDoc struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// EncodePromotion serializes a promotion body for the document store.
func EncodePromotion(p Promotion) ([]byte, error) {
	plans := p.Plans
	if plans == nil {
		plans = []Plan{}
	}
	benefits := p.Benefits
	if benefits == nil {
		benefits = []Benefit{}
	}
	return json.Marshal(promotionDoc{
		Title:       p.Title,
		Description: p.Description,
		Type:        p.Type,
		ImageURL:    p.ImageURL,
		Price:       p.Price,
		Plans:       plans,
		Benefits:    benefits,
		CreatedBy:   p.CreatedBy,
	})
}

// DecodePromotion rebuilds a promotion from a stored body.
func DecodePromotion(id string, data []byte, keywords []string, createdAt, updatedAt int64) (Promotion, error) {
	var d promotionDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return Promotion{}, err
	}
	if d.Type == "" {
		d.Type = TypePlan
	}
	return Promotion{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Type:        d.Type,
		ImageURL:    d.ImageURL,
		Price:       d.Price,
		Plans:       d.Plans,
		Benefits:    d.Benefits,
		Keywords:    keywords,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// EncodeNote serializes a note body.
func EncodeNote(n Note) ([]byte, error) {
	return json.Marshal(noteDoc{UserID: n.UserID, Title: n.Title, Content: n.Content})
}

// DecodeNote rebuilds a note from a stored body.
func DecodeNote(id string, data []byte, keywords []string, createdAt, updatedAt int64) (Note, error) {
	var d noteDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return Note{}, err
	}
	return Note{
		ID:        id,
		UserID:    d.UserID,
		Title:     d.Title,
		Content:   d.Content,
		Keywords:  keywords,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// EncodeSavedBudget serializes a saved budget body.
func EncodeSavedBudget(b SavedBudget) ([]byte, error) {
	items := b.Items
	if items == nil {
		items = []budget.LineItem{}
	}
	return json.Marshal(budgetDoc{UserID: b.UserID, Name: b.Name, Items: items, Total: b.Total})
}

// DecodeSavedBudget rebuilds a saved budget from a stored body.
func DecodeSavedBudget(id string, data []byte, createdAt, updatedAt int64) (SavedBudget, error) {
	var d budgetDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return SavedBudget{}, err
	}
	return SavedBudget{
		ID:        id,
		UserID:    d.UserID,
		Name:      d.Name,
		Items:     d.Items,
		Total:     d.Total,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// EncodeAuthorizedUser serializes an allow-list entry. The email is the document id.
func EncodeAuthorizedUser(u AuthorizedUser) ([]byte, error) {
	return json.Marshal(authorizedUserDoc{Role: u.Role, Name: u.Name})
}

// DecodeAuthorizedUser rebuilds an allow-list entry.
func DecodeAuthorizedUser(email string, data []byte, createdAt int64) (AuthorizedUser, error) {
	var d authorizedUserDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return AuthorizedUser{}, err
	}
	if d.Role == "" {
		d.Role = RoleUser
	}
	return AuthorizedUser{Email: email, Role: d.Role, Name: d.Name, CreatedAt: createdAt}, nil
}
