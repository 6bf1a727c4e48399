package harness

import (
	"fmt"
	"path/filepath"
	"sort"
)

// SuiteResult aggregates the outcome of running every scenario in a
// directory.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure describes one failed scenario.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// RunSuite loads and executes every *.yaml scenario under dir, in file name
// order. A scenario that fails to load or execute counts as failed; the
// suite keeps going so one broken scenario does not mask the rest.
func RunSuite(dir string) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found under %s", dir)
	}
	sort.Strings(paths)

	suite := &SuiteResult{}
	for _, path := range paths {
		suite.TotalScenarios++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.fail(filepath.Base(path), path, err.Error())
			continue
		}
		result, err := Run(scenario)
		if err != nil {
			suite.fail(scenario.Name, path, err.Error())
			continue
		}
		if !result.Pass {
			suite.fail(scenario.Name, path, result.Errors...)
			continue
		}
		suite.Passed++
	}
	return suite, nil
}

func (s *SuiteResult) fail(name, path string, errs ...string) {
	s.Failed++
	s.Failures = append(s.Failures, ScenarioFailure{
		Scenario: name,
		Path:     path,
		Errors:   errs,
	})
}
