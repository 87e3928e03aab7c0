package testutil

import "testing"

// Scenario runs Given/When/Then steps as subtests of t. Once a step fails
// the remaining steps are reported as skipped, so one broken precondition
// surfaces once instead of as a cascade of follow-on failures.
type Scenario struct {
	t      *testing.T
	failed bool
}

func NewScenario(t *testing.T) *Scenario {
	return &Scenario{t: t}
}

func (s *Scenario) Given(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("Given "+desc, fn)
}

func (s *Scenario) When(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("When "+desc, fn)
}

func (s *Scenario) Then(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("Then "+desc, fn)
}

// And continues with the kind of the previous step.
func (s *Scenario) And(desc string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	return s.step("And "+desc, fn)
}

func (s *Scenario) step(name string, fn func(t *testing.T)) *Scenario {
	s.t.Helper()
	if s.failed {
		s.t.Run(name, func(t *testing.T) {
			t.Skip("skipped after an earlier step failed")
		})
		return s
	}
	if !s.t.Run(name, fn) {
		s.failed = true
	}
	return s
}
