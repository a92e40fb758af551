package personnel_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

func TestConversionRate(t *testing.T) {
	tests := []struct {
		name        string
		conversions int
		interns     int
		want        string
	}{
		{"no interns ever", 0, 0, "0"},
		{"none converted", 0, 4, "0"},
		{"all converted", 3, 0, "1"},
		{"one of three", 1, 2, "0.3333"},
		{"two of three", 2, 1, "0.6667"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := personnel.ConversionRate(tc.conversions, tc.interns)
			assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestDashboard(t *testing.T) {
	// GIVEN: Two records created on 2025-03-01, one intern converted, and one
	//        record created on 2025-03-03
	// WHEN: Building a 5-day dashboard on 2025-03-03
	// THEN: Counts, conversion rate and a zero-filled trend match

	env := newTestEnv(t, date(2025, 3, 1))
	ctx := context.Background()
	a := env.createIntern(t, "a@example.com", date(2025, 3, 1), date(2025, 8, 31))
	env.createIntern(t, "b@example.com", date(2025, 3, 1), date(2025, 8, 31))
	_, err := env.svc.Convert(ctx, testActor, string(a.ID), nil)
	require.NoError(t, err)

	env.clock.SetDay(date(2025, 3, 3))
	env.createEmployee(t, "c@example.com")
	env.createRole(t, "Developer")

	dash, err := env.svc.Dashboard(ctx, 5)
	require.NoError(t, err)

	assert.Equal(t, 3, dash.Counts.Total)
	assert.Equal(t, 1, dash.Counts.Interns)
	assert.Equal(t, 2, dash.Counts.Employees)
	assert.Equal(t, 1, dash.Counts.Conversions)
	assert.Equal(t, 1, dash.Counts.ActiveRoles)
	assert.True(t, decimal.RequireFromString("0.5").Equal(dash.ConversionRate), "got %s", dash.ConversionRate)

	require.Len(t, dash.Trend, 5)
	assert.Equal(t, personnel.TrendPoint{Date: "2025-02-27", Count: 0}, dash.Trend[0])
	assert.Equal(t, personnel.TrendPoint{Date: "2025-03-01", Count: 2}, dash.Trend[2])
	assert.Equal(t, personnel.TrendPoint{Date: "2025-03-03", Count: 1}, dash.Trend[4])

	require.Len(t, dash.Recent, 5)
	assert.Equal(t, generic.AuditRoleCreated, dash.Recent[0].Action)
}
