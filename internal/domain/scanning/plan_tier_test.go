package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected PlanTier
		wantErr  bool
	}{
		{name: "free", input: "FREE", expected: PlanTierFree},
		{name: "basic", input: "BASIC", expected: PlanTierBasic},
		{name: "pro", input: "PRO", expected: PlanTierPro},
		{name: "enterprise", input: "ENTERPRISE", expected: PlanTierEnterprise},
		{name: "lowercase is rejected", input: "free", wantErr: true},
		{name: "unknown tier is rejected", input: "PLATINUM", wantErr: true},
		{name: "empty tier is rejected", input: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tier, err := ParsePlanTier(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var tierErr *PlanTierError
				require.ErrorAs(t, err, &tierErr)
				assert.Equal(t, tt.input, tierErr.Tier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tier)
		})
	}
}
