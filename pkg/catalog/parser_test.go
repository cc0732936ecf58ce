package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/arbiter/pkg/lod"
)

const combatJSON = `{
  "name": "combat",
  "version": "1",
  "actions": [
    {
      "name": "Attack",
      "context_fetcher": "enemies_in_range",
      "considerations": [
        {"consideration": "my_health", "curve": "Linear", "min": 0, "max": 100},
        {"consideration": "target_distance", "curve": "AntiSquare", "min": 0, "max": 30}
      ],
      "priority": 2,
      "action_key": "melee_attack",
      "lod_min": 0,
      "lod_max": 50
    }
  ]
}`

const combatYAML = `
name: combat
actions:
  - name: Attack
    context_fetcher: enemies_in_range
    considerations:
      - consideration: my_health
        curve: Linear
        min: 0
        max: 100
    action_key: melee_attack
`

func TestParseJSON(t *testing.T) {
	set, err := ParseJSON([]byte(combatJSON))
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	want := Template{
		Name:           "Attack",
		ContextFetcher: "enemies_in_range",
		Considerations: []ConsiderationSpec{
			{Consideration: "my_health", Curve: "Linear", Min: 0, Max: 100},
			{Consideration: "target_distance", Curve: "AntiSquare", Min: 0, Max: 30},
		},
		Priority:  2,
		ActionKey: "melee_attack",
		LODMin:    lod.Ptr(0),
		LODMax:    lod.Ptr(50),
	}
	if diff := cmp.Diff(want, set.Actions[0]); diff != "" {
		t.Fatalf("template mismatch (-want +got):\n%s", diff)
	}
}

func TestParseYAML(t *testing.T) {
	set, err := ParseYAML([]byte(combatYAML))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if set.Actions[0].Priority != DefaultPriority {
		t.Fatalf("expected default priority, got %v", set.Actions[0].Priority)
	}
	if set.Actions[0].LODMin != nil || set.Actions[0].LODMax != nil {
		t.Fatalf("expected no lod band")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := ParseJSON(nil); err == nil {
		t.Fatalf("expected error for empty json")
	}
	if _, err := ParseYAML(nil); err == nil {
		t.Fatalf("expected error for empty yaml")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	set, err := ParseJSON([]byte(combatJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	payload, err := MarshalYAML(set)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	back, err := ParseYAML(payload)
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if diff := cmp.Diff(set, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if _, err := MarshalJSON(set, true); err != nil {
		t.Fatalf("marshal json: %v", err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoaderByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "combat.json", combatJSON)
	yamlPath := writeFile(t, dir, "combat.yml", combatYAML)

	for _, path := range []string{jsonPath, yamlPath} {
		set, err := LoadFile(path)
		if err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
		if set.Name != "combat" {
			t.Fatalf("unexpected set name %q", set.Name)
		}
	}
}

func TestLoaderAutoDetectAndDefaultName(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "villagers.actions", `
actions:
  - name: Farm
    context_fetcher: fields
    action_key: farm
`)
	set, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Name != "villagers" {
		t.Fatalf("expected name from file, got %q", set.Name)
	}
}

func TestLoaderCustomDecoder(t *testing.T) {
	loader := NewLoader()
	type wrapped struct {
		Set ActionSet `yaml:"set"`
	}
	loader.Register("wrap", DecoderFunc(func(data []byte, set *ActionSet) error {
		var w wrapped
		if err := yaml.Unmarshal(data, &w); err != nil {
			return err
		}
		*set = w.Set
		return nil
	}))
	dir := t.TempDir()
	path := writeFile(t, dir, "x.wrap", "set:\n  name: wrapped\n  actions:\n    - {name: A, context_fetcher: f, action_key: a}\n")
	set, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Name != "wrapped" {
		t.Fatalf("expected custom decoder output, got %q", set.Name)
	}
	if diff := cmp.Diff([]string{".json", ".wrap", ".yaml", ".yml"}, loader.Extensions()); diff != "" {
		t.Fatalf("extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPathsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", combatJSON)
	writeFile(t, dir, "b.yaml", "name: base\nactions:\n  - {name: Idle, context_fetcher: self, action_key: idle}\n")
	writeFile(t, dir, "notes.txt", "ignored")
	sets, err := NewLoader().LoadPaths([]string{dir})
	if err != nil {
		t.Fatalf("load paths: %v", err)
	}
	if len(sets) != 2 || sets[0].Name != "combat" || sets[1].Name != "base" {
		t.Fatalf("unexpected sets: %+v", sets)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"name":"bad","actions":[{"name":"X"}]}`)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := LoadFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
