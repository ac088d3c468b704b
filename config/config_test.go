package config

import (
	"os"
	"path/filepath"
	"testing"

	"netverify/label"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

const networkJSON = `{
  "routers": [{"name": "A"}, {"name": "B"}],
  "interfaces": [
    {"router": "A", "name": "out"},
    {"router": "B", "name": "in"}
  ],
  "links": [
    {"a": {"Router": "A", "Interface": "out"}, "b": {"Router": "B", "Interface": "in"}}
  ]
}`

func TestLoadNetwork(t *testing.T) {
	path := writeTemp(t, "net.json", networkJSON)
	net, err := LoadNetwork(path)
	if err != nil {
		t.Fatalf("LoadNetwork: %v", err)
	}
	if err := net.ValidatePairing(); err != nil {
		t.Errorf("ValidatePairing: %v", err)
	}
	if _, ok := net.RouterByName("A"); !ok {
		t.Errorf("expected router A to be loaded")
	}
	if _, ok := net.RouterByName("B"); !ok {
		t.Errorf("expected router B to be loaded")
	}
}

func TestLoadNetworkRejectsUnknownRouter(t *testing.T) {
	bad := `{"routers": [{"name": "A"}], "interfaces": [{"router": "ghost", "name": "x"}]}`
	path := writeTemp(t, "bad.json", bad)
	if _, err := LoadNetwork(path); err == nil {
		t.Errorf("expected error for interface referencing unknown router")
	}
}

const routingJSON = `{
  "tables": [
    {
      "router": "A",
      "entries": [
        {
          "Top": {"kind": "MPLS", "value": 5},
          "rules": [{"via": "out", "kind": "MPLS", "weight": 0, "ops": "Pop"}]
        }
      ]
    }
  ]
}`

func TestLoadRouting(t *testing.T) {
	netPath := writeTemp(t, "net.json", networkJSON)
	net, err := LoadNetwork(netPath)
	if err != nil {
		t.Fatalf("LoadNetwork: %v", err)
	}

	routingPath := writeTemp(t, "routing.json", routingJSON)
	tables, err := LoadRouting(routingPath, net)
	if err != nil {
		t.Fatalf("LoadRouting: %v", err)
	}
	a, _ := net.RouterByName("A")
	table, ok := tables[a]
	if !ok {
		t.Fatalf("expected a routing table for router A")
	}
	entries := table.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !label.Equal(entries[0].Key.Top, label.MPLSLabel(5)) {
		t.Errorf("entry top label = %v, want MPLS(5)", entries[0].Key.Top)
	}
	if len(entries[0].Rules) != 1 || len(entries[0].Rules[0].Ops) != 1 {
		t.Fatalf("expected one rule with one op, got %+v", entries[0].Rules)
	}
}

const queriesJSON = `{
  "queries": [
    {
      "text": "A to B",
      "k": 1,
      "mode": "OVER",
      "initial_header": {"num_states": 1, "start": [0], "accept": [0]},
      "final_header": {"num_states": 1, "start": [0], "accept": [0]},
      "path": {
        "num_states": 2,
        "start": [0],
        "accept": [1],
        "transitions": [{"from": 0, "interface": "*", "router": "*", "to": 1}]
      }
    }
  ]
}`

func TestLoadQueries(t *testing.T) {
	path := writeTemp(t, "queries.json", queriesJSON)
	queries, err := LoadQueries(path)
	if err != nil {
		t.Fatalf("LoadQueries: %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("got %d queries, want 1", len(queries))
	}
	q := queries[0]
	if q.Text != "A to B" {
		t.Errorf("Text = %q, want %q", q.Text, "A to B")
	}
	if q.K != 1 {
		t.Errorf("K = %d, want 1", q.K)
	}
	if err := q.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadQueriesRejectsUnknownMode(t *testing.T) {
	bad := `{"queries": [{"text": "x", "mode": "bogus", "initial_header": {"num_states":1,"start":[0],"accept":[0]}, "final_header": {"num_states":1,"start":[0],"accept":[0]}, "path": {"num_states":1,"start":[0],"accept":[0]}}]}`
	path := writeTemp(t, "bad_queries.json", bad)
	if _, err := LoadQueries(path); err == nil {
		t.Errorf("expected error for unknown mode")
	}
}

func TestDefaultSettings(t *testing.T) {
	s := Default()
	if s.Workers != 4 {
		t.Errorf("default Workers = %d, want 4", s.Workers)
	}
	if s.LogDir != "./logs" {
		t.Errorf("default LogDir = %q, want ./logs", s.LogDir)
	}
}

const settingsTOML = `
network = "net.json"
routing = "routing.json"
queries = "queries.json"
reduction_level = 2
workers = 8
`

func TestLoadSettings(t *testing.T) {
	path := writeTemp(t, "settings.toml", settingsTOML)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Workers != 8 {
		t.Errorf("Workers = %d, want 8", s.Workers)
	}
	if s.ReductionLevel != 2 {
		t.Errorf("ReductionLevel = %d, want 2", s.ReductionLevel)
	}
}
