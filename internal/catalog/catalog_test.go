package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ccpro/internal/budget"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Plan   Premium ", "plan premium"},
		{"PLAN", "plan"},
		{"a\t\nb", "a b"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("agent@example.com"))
	assert.True(t, ValidEmail("  agent@example.com "))
	assert.False(t, ValidEmail("agent@example"))
	assert.False(t, ValidEmail("agent example@x.com"))
	assert.False(t, ValidEmail(""))
}

func TestItemType(t *testing.T) {
	for _, typ := range ItemTypes {
		assert.True(t, typ.Valid(), "type %q", typ)
	}
	assert.False(t, ItemType("video").Valid())
	assert.Equal(t, "Textos", TypeText.Label())
	assert.Equal(t, "video", ItemType("video").Label())
}

func TestNewNote_DerivesKeywords(t *testing.T) {
	n := NewNote("u1", "Llamar cliente", "renovar contrato", 100)
	assert.Contains(t, n.Keywords, "llamar")
	assert.Contains(t, n.Keywords, "ren")
	assert.Equal(t, int64(100), n.CreatedAt)
	assert.Equal(t, n.CreatedAt, n.UpdatedAt)
}

func TestNewAuthorizedUser_Defaults(t *testing.T) {
	u := NewAuthorizedUser("  Agent@Example.com ", "", "Agent", 1)
	assert.Equal(t, "agent@example.com", u.Email)
	assert.Equal(t, RoleUser, u.Role)
}

func TestFindPlan(t *testing.T) {
	p := Promotion{Plans: []Plan{{Name: "Mensual"}, {Name: "Anual"}}}

	plan, ok := FindPlan(p, " mensual ")
	require.True(t, ok)
	assert.Equal(t, "Mensual", plan.Name)

	_, ok = FindPlan(p, "semanal")
	assert.False(t, ok)
}

func TestPromotionDocumentBoundary(t *testing.T) {
	p := Promotion{
		Title:       "Plan Premium",
		Description: "internet de alta velocidad",
		Type:        TypePlan,
		Plans: []Plan{{
			Name:       "Mensual",
			ListPrice:  decimal.NewFromInt(6000),
			FinalPrice: decimal.NewFromInt(5000),
		}},
		CreatedBy: "u1",
	}

	data, err := EncodePromotion(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)

	got, err := DecodePromotion("01P", data, []string{"plan"}, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, "01P", got.ID)
	assert.Equal(t, p.Title, got.Title)
	assert.True(t, got.Plans[0].FinalPrice.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, []Benefit{}, got.Benefits)
	assert.Equal(t, int64(20), got.UpdatedAt)
}

func TestDecodePromotion_DefaultsType(t *testing.T) {
	got, err := DecodePromotion("x", []byte(`{"title":"t"}`), nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, TypePlan, got.Type)
}

func TestDecodePromotion_Malformed(t *testing.T) {
	_, err := DecodePromotion("x", []byte(`{`), nil, 0, 0)
	assert.Error(t, err)
}

func TestSavedBudgetDocumentBoundary(t *testing.T) {
	items := []budget.LineItem{{Name: "Plan", UnitPrice: decimal.NewFromInt(10), Quantity: 2}}
	data, err := EncodeSavedBudget(SavedBudget{UserID: "u1", Name: "Cliente", Items: items, Total: decimal.NewFromInt(20)})
	require.NoError(t, err)

	got, err := DecodeSavedBudget("b1", data, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(20)))
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.NewFromInt(5000), "$ 5.000,00"},
		{decimal.RequireFromString("1234567.5"), "$ 1.234.567,50"},
		{decimal.NewFromInt(12), "$ 12,00"},
		{decimal.Zero, "$ 0,00"},
		{decimal.NewFromInt(-1500), "-$ 1.500,00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.in))
	}
}

func TestPromotionCopyText(t *testing.T) {
	p := Promotion{
		Title: "Plan Premium",
		Type:  TypePlan,
		Plans: []Plan{{Name: "Mensual", FinalPrice: decimal.NewFromInt(5000)}},
		Benefits: []Benefit{
			{Title: "Router", Description: "gratis", Duration: "12 meses"},
			{Title: "Soporte"},
		},
	}

	want := "Mensual: $ 5.000,00\n\nBeneficios:\n- Router: gratis (12 meses)\n- Soporte"
	assert.Equal(t, want, PromotionCopyText(p))
}

func TestPromotionCopyText_Fallbacks(t *testing.T) {
	price := Promotion{Title: "Deco", Type: TypePrice, Price: decimal.NewFromInt(300)}
	assert.Equal(t, "Deco: $300", PromotionCopyText(price))

	image := Promotion{Title: "Banner", Type: TypeImage, ImageURL: "https://x/y.png"}
	assert.Equal(t, "Banner: https://x/y.png", PromotionCopyText(image))

	text := Promotion{Title: "Aviso", Type: TypeText, Description: "Horario extendido"}
	assert.Equal(t, "Horario extendido", PromotionCopyText(text))
}

func TestNoteCopyText(t *testing.T) {
	n := Note{Title: "Cliente", Content: "Llamar", CreatedAt: 0}
	assert.Equal(t, "Nota: Cliente\n--------------------------\nLlamar\n\nCreada: 1970-01-01 00:00", NoteCopyText(n))
}
