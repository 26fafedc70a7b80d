package workflow

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/onboarding-service/internal/domain"
)

// randomTemplate builds a DAG where every edge points to a lower sequence.
func randomTemplate(rng *rand.Rand, size int) domain.WorkflowTemplate {
	defs := make([]domain.ActivityDef, size)
	for i := 0; i < size; i++ {
		defs[i] = def(fmt.Sprintf("n%d", i), i+1)
		for j := 0; j < i; j++ {
			if rng.Intn(3) == 0 {
				defs[i].DependsOn = append(defs[i].DependsOn, defs[j].Key)
			}
		}
	}
	return template(defs...)
}

func assertUnlockInvariant(t *testing.T, instances []domain.ActivityInstance) {
	t.Helper()
	status := make(map[string]domain.ActivityStatus, len(instances))
	for _, inst := range instances {
		status[inst.ID] = inst.Status
	}
	for _, inst := range instances {
		allDone := true
		for _, dep := range inst.DependsOn {
			if status[dep] != domain.ActivityStatusCompleted {
				allDone = false
			}
		}
		released := inst.Status != domain.ActivityStatusBlocked
		require.Equal(t, allDone, released, "instance %s status %s", inst.Key, inst.Status)
	}
}

func TestCompleteActivity_UnlockInvariantOnRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		tmpl := randomTemplate(rng, 2+rng.Intn(9))
		instances, err := Instantiate(tmpl, "case", nil, nil, testNow)
		require.NoError(t, err)
		assertUnlockInvariant(t, instances)

		for {
			var open []string
			for _, inst := range instances {
				if inst.Status == domain.ActivityStatusTodo {
					open = append(open, inst.ID)
				}
			}
			if len(open) == 0 {
				break
			}
			pick := open[rng.Intn(len(open))]

			res, err := CompleteActivity("case", pick, instances, testNow, nil)
			require.NoError(t, err)
			instances = res.Instances
			assertUnlockInvariant(t, instances)

			again, err := CompleteActivity("case", pick, instances, testNow, nil)
			require.NoError(t, err)
			require.Equal(t, instances, again.Instances)
		}

		_, allTerminal := CurrentStep(instances)
		require.True(t, allTerminal, "round %d left activities open", round)
	}
}
