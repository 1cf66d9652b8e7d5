package testutil

import "testing"

// Scenario runs ordered Given/When/Then steps as subtests of t. Steps build
// on the state earlier ones left behind, so after a failing step the rest
// are skipped instead of failing for unrelated reasons.
type Scenario struct {
	t      *testing.T
	broken string
}

// NewScenario starts a scenario on t.
func NewScenario(t *testing.T) *Scenario {
	return &Scenario{t: t}
}

func (s *Scenario) Given(desc string, fn func(t *testing.T)) { s.step("Given "+desc, fn) }

func (s *Scenario) When(desc string, fn func(t *testing.T)) { s.step("When "+desc, fn) }

func (s *Scenario) Then(desc string, fn func(t *testing.T)) { s.step("Then "+desc, fn) }

func (s *Scenario) And(desc string, fn func(t *testing.T)) { s.step("And "+desc, fn) }

func (s *Scenario) step(name string, fn func(t *testing.T)) {
	s.t.Helper()
	if s.broken != "" {
		s.t.Run(name, func(t *testing.T) {
			t.Skipf("skipped after %q failed", s.broken)
		})
		return
	}
	if !s.t.Run(name, fn) {
		s.broken = name
	}
}
