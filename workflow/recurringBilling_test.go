package workflow_test

import (
	"testing"

	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRecurringBilling(t *testing.T) {
	ctx := setupTestDB(t)
	client := newClient(t, ctx, "contrats@pv.fr")
	asOf := day(2025, 3, 15)

	due := newContract(t, ctx, models.NewRecurringContract{ClientId: client.ID, StartDate: day(2025, 3, 1)})
	end := day(2025, 1, 31)
	firstBilling := day(2025, 2, 1)
	ended := newContract(t, ctx, models.NewRecurringContract{
		ClientId:         client.ID,
		StartDate:        day(2025, 1, 1),
		EndDate:          &end,
		FirstBillingDate: &firstBilling,
	})
	notDue := newContract(t, ctx, models.NewRecurringContract{ClientId: client.ID, StartDate: day(2025, 4, 1)})

	result, err := workflow.RunRecurringBilling(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"FAC-2025-001"}, result.Invoices)
	assert.Equal(t, []int{ended.ID}, result.Ended)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Failed)

	billed, err := models.GetRecurringContract(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, billed.NextBillingDate.Equal(day(2025, 4, 1)))
	deactivated, err := models.GetRecurringContract(ctx, ended.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active())
	untouched, err := models.GetRecurringContract(ctx, notDue.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.LastBilledAt)

	// nothing is due any more on the same day
	again, err := workflow.RunRecurringBilling(ctx, asOf)
	require.NoError(t, err)
	assert.Empty(t, again.Invoices)
	assert.Empty(t, again.Ended)

	invoices, err := models.ListInvoices(ctx, models.InvoiceFilter{ClientId: client.ID})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.NotNil(t, invoices[0].ContractId)
	assert.Equal(t, due.ID, *invoices[0].ContractId)
}
