package enforcement

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEmbeddedRulesIntegrity(t *testing.T) {
	if len(DefenseRules) == 0 {
		t.Fatal("Embedded rule data is empty. Did the build fail to include 'defense_rules.yaml'?")
	}

	var dump map[string]interface{}
	if err := yaml.Unmarshal(DefenseRules, &dump); err != nil {
		t.Fatalf("Embedded rule data is not valid YAML: %v", err)
	}

	for _, key := range []string{"injection_rules", "response_patterns", "prohibited_content", "markers"} {
		if _, ok := dump[key]; !ok {
			t.Errorf("Embedded rule data is missing the %q section", key)
		}
	}
}
