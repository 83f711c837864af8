package ops

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ccpro/internal/catalog"
)

// TestFullWorkflow exercises an agent shift:
// allow → store promotions → search → build budget → save → notes → revoke
func TestFullWorkflow(t *testing.T) {
	database, cfg := setupDB(t)
	store := setupScratch(t)
	ctx := context.Background()

	// 1. Admin allows the agent
	_, err := AllowUser(ctx, database, cfg, adminActor, AllowUserInput{Email: agentActor.Email, Name: "Agente"})
	require.NoError(t, err)
	ok, err := IsAuthorized(ctx, database, cfg, agentActor.Email)
	require.NoError(t, err)
	require.True(t, ok)

	// 2. Admin stores promotions
	premium := storePromotion(t, database, cfg, premiumInput())
	storePromotion(t, database, cfg, StorePromotionInput{
		Title:       "Combo Hogar",
		Description: "TV + internet",
		Type:        catalog.TypePlan,
		Plans:       []catalog.Plan{{Name: "Único", FinalPrice: decimal.NewFromInt(8000)}},
	})

	// 3. Agent searches
	engine, err := LoadPromotionEngine(ctx, database)
	require.NoError(t, err)

	res, err := SearchPromotions(ctx, engine, SearchPromotionsInput{Query: "premium"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Equal(t, premium, res.Groups[0].Items[0].ID)

	res, err = SearchPromotions(ctx, engine, SearchPromotionsInput{Query: "net"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	// 4. Agent builds a budget
	_, err = AddPlanToBudget(ctx, database, store, testSession, AddPlanInput{PromotionID: premium, PlanName: "Mensual"})
	require.NoError(t, err)
	out, err := AddBudgetItem(store, testSession, AddBudgetItemInput{Name: "Instalación", UnitPrice: decimal.NewFromInt(2000), Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	require.True(t, out.Total.Equal(decimal.NewFromInt(9000)), "got %s", out.Total)
	require.Contains(t, out.Text, "TOTAL: $9000")

	// 5. Agent saves it
	saved, err := SaveBudget(ctx, database, store, testSession, agentActor, SaveBudgetInput{Name: "Cliente Gómez"})
	require.NoError(t, err)
	budgets, err := ListSavedBudgets(ctx, database, cfg, agentActor, ListSavedBudgetsInput{})
	require.NoError(t, err)
	require.Len(t, budgets.Items, 1)
	require.Equal(t, saved.ID, budgets.Items[0].ID)
	require.True(t, budgets.Items[0].Total.Equal(decimal.NewFromInt(9000)))

	// 6. Agent keeps a note
	noteID := storeNote(t, database, agentActor, "Cliente Gómez", "interesado en plan premium")
	notes, err := ListNotes(ctx, database, cfg, agentActor, ListNotesInput{Query: "gómez"})
	require.NoError(t, err)
	require.Len(t, notes.Items, 1)
	require.Equal(t, noteID, notes.Items[0].ID)

	// 7. Admin revokes the agent
	_, err = RevokeUser(ctx, database, cfg, adminActor, agentActor.Email)
	require.NoError(t, err)
	ok, err = IsAuthorized(ctx, database, cfg, agentActor.Email)
	require.NoError(t, err)
	require.False(t, ok)
}
