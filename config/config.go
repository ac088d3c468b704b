// Package config loads the verifier's settings from a TOML file, the way
// the reference forwarding daemon loads forwarding_config.toml, plus the
// JSON-shaped network/routing/query input files the CLI reads at startup
// (surface query-regex syntax is out of scope per spec.md §1, so queries
// are read already split into their three automata rather than parsed from
// a regex grammar).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"netverify/label"
	"netverify/network"
	"netverify/query"
	"netverify/reducer"
	"netverify/rtable"
)

// Settings is the top-level TOML configuration.
type Settings struct {
	Network        string     `toml:"network"`        // path to network JSON
	Routing        string     `toml:"routing"`        // path to routing-tables JSON
	Queries        string     `toml:"queries"`        // path to queries JSON
	ReductionLevel int        `toml:"reduction_level"`
	Workers        int        `toml:"workers"`
	LogDir         string     `toml:"log_dir"`
	Etcd           EtcdConfig `toml:"etcd"`
	ServeAddr      string     `toml:"serve_addr"`
	RemoteWorker   string     `toml:"remote_worker_addr"`
}

// EtcdConfig mirrors distributed.Config's shape so it round-trips through
// TOML without importing the distributed package here.
type EtcdConfig struct {
	Endpoints   []string `toml:"endpoints"`
	DialTimeout string   `toml:"dial_timeout"`
}

// Default returns the settings used when no config file is given.
func Default() Settings {
	return Settings{
		ReductionLevel: int(reducer.DualStack),
		Workers:        4,
		LogDir:         "./logs",
		ServeAddr:      "127.0.0.1:50151",
	}
}

// Load reads and decodes a TOML settings file, filling in defaults for
// anything left unset.
func Load(path string) (Settings, error) {
	s := Default()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return s, nil
}

// --- JSON input shapes -----------------------------------------------------

type networkFile struct {
	Routers []struct {
		Name string   `json:"name"`
		Lat  *float64 `json:"lat,omitempty"`
		Lon  *float64 `json:"lon,omitempty"`
	} `json:"routers"`
	Interfaces []struct {
		Router string `json:"router"`
		Name   string `json:"name"`
	} `json:"interfaces"`
	Links []struct {
		A struct{ Router, Interface string } `json:"a"`
		B struct{ Router, Interface string } `json:"b"`
	} `json:"links"`
}

// LoadNetwork reads a network topology from JSON: routers, their
// interfaces, and the link pairings between interfaces.
func LoadNetwork(path string) (*network.Network, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading network file %s: %w", path, err)
	}
	var nf networkFile
	if err := json.Unmarshal(body, &nf); err != nil {
		return nil, fmt.Errorf("config: parsing network file %s: %w", path, err)
	}

	net := network.New()
	routerIDs := make(map[string]network.RouterID, len(nf.Routers))
	for _, r := range nf.Routers {
		id, err := net.AddRouter(r.Name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		routerIDs[r.Name] = id
		if r.Lat != nil && r.Lon != nil {
			net.SetCoordinate(id, network.Coordinate{Lat: *r.Lat, Lon: *r.Lon})
		}
	}

	ifaceIDs := make(map[string]network.InterfaceID, len(nf.Interfaces))
	for _, i := range nf.Interfaces {
		rid, ok := routerIDs[i.Router]
		if !ok {
			return nil, fmt.Errorf("config: interface %s references unknown router %q", i.Name, i.Router)
		}
		id, err := net.AddInterface(rid, i.Name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		ifaceIDs[i.Router+"."+i.Name] = id
	}

	for _, l := range nf.Links {
		a, ok := ifaceIDs[l.A.Router+"."+l.A.Interface]
		if !ok {
			return nil, fmt.Errorf("config: link references unknown interface %s.%s", l.A.Router, l.A.Interface)
		}
		b, ok := ifaceIDs[l.B.Router+"."+l.B.Interface]
		if !ok {
			return nil, fmt.Errorf("config: link references unknown interface %s.%s", l.B.Router, l.B.Interface)
		}
		if err := net.Pair(a, b); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return net, nil
}

type routingFile struct {
	Tables []struct {
		Router  string `json:"router"`
		Entries []struct {
			Ingress    *string `json:"ingress,omitempty"`
			Top        labelJSON
			Decreasing bool `json:"decreasing,omitempty"`
			Rules      []struct {
				Via    *string `json:"via,omitempty"`
				Kind   string  `json:"kind"`
				Weight uint32  `json:"weight"`
				Ops    string  `json:"ops"` // "Swap 17, Push 3"
			} `json:"rules"`
		} `json:"entries"`
	} `json:"tables"`
}

type labelJSON struct {
	Kind  string `json:"kind"`
	Value uint64 `json:"value,omitempty"`
	Mask  uint64 `json:"mask,omitempty"`
}

func (l labelJSON) toLabel() (label.Label, error) {
	switch l.Kind {
	case "MPLS":
		return label.MPLSLabel(l.Value), nil
	case "ANY_MPLS":
		return label.Label{Kind: label.AnyMPLS}, nil
	case "ANY_IP":
		return label.Label{Kind: label.AnyIP}, nil
	case "IP4":
		return label.IPv4Label(l.Value, l.Mask), nil
	case "IP6":
		return label.IPv6Label(l.Value, l.Mask), nil
	case "NONE", "":
		return label.NoneLabel(), nil
	default:
		return label.Label{}, fmt.Errorf("config: unknown label kind %q", l.Kind)
	}
}

func ruleKindOf(s string) (rtable.RuleKind, error) {
	switch s {
	case "MPLS":
		return rtable.RuleMPLS, nil
	case "IP":
		return rtable.RuleIP, nil
	case "RECEIVE":
		return rtable.RuleReceive, nil
	case "DISCARD":
		return rtable.RuleDiscard, nil
	default:
		return 0, fmt.Errorf("config: unknown rule kind %q", s)
	}
}

// LoadRouting reads every router's routing table from JSON, keyed by
// network.RouterID resolved against net.
func LoadRouting(path string, net *network.Network) (map[network.RouterID]*rtable.Table, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading routing file %s: %w", path, err)
	}
	var rf routingFile
	if err := json.Unmarshal(body, &rf); err != nil {
		return nil, fmt.Errorf("config: parsing routing file %s: %w", path, err)
	}

	ifaceByName := make(map[string]network.InterfaceID)
	for _, iface := range net.Interfaces() {
		ifaceByName[net.Router(iface.Router).Name+"."+iface.Name] = iface.ID
	}

	tables := make(map[network.RouterID]*rtable.Table)
	for _, tf := range rf.Tables {
		rid, ok := net.RouterByName(tf.Router)
		if !ok {
			return nil, fmt.Errorf("config: routing table for unknown router %q", tf.Router)
		}
		table := rtable.NewTable(tf.Router)
		for _, ef := range tf.Entries {
			top, err := ef.Top.toLabel()
			if err != nil {
				return nil, err
			}
			var ingress *network.InterfaceID
			if ef.Ingress != nil {
				id, ok := ifaceByName[tf.Router+"."+*ef.Ingress]
				if !ok {
					return nil, fmt.Errorf("config: unknown ingress interface %s.%s", tf.Router, *ef.Ingress)
				}
				ingress = &id
			}
			entry := rtable.Entry{Key: rtable.Key{Ingress: ingress, Top: top, Decreasing: ef.Decreasing}}
			for _, rf2 := range ef.Rules {
				kind, err := ruleKindOf(rf2.Kind)
				if err != nil {
					return nil, err
				}
				ops, err := rtable.ParseOps(rf2.Ops)
				if err != nil {
					return nil, err
				}
				var via *network.InterfaceID
				if rf2.Via != nil {
					id, ok := ifaceByName[tf.Router+"."+*rf2.Via]
					if !ok {
						return nil, fmt.Errorf("config: unknown via interface %s.%s", tf.Router, *rf2.Via)
					}
					via = &id
				}
				entry.Rules = append(entry.Rules, rtable.Rule{Via: via, Kind: kind, Weight: rf2.Weight, Ops: ops})
			}
			if err := table.AddEntry(entry); err != nil {
				return nil, fmt.Errorf("config: router %s: %w", tf.Router, err)
			}
		}
		tables[rid] = table
	}
	return tables, nil
}

type queriesFile struct {
	Queries []struct {
		Text          string        `json:"text"`
		K             int           `json:"k"`
		Mode          string        `json:"mode"`
		InitialHeader automatonJSON `json:"initial_header"`
		FinalHeader   automatonJSON `json:"final_header"`
		Path          pathJSON      `json:"path"`
	} `json:"queries"`
}

type automatonJSON struct {
	NumStates   int       `json:"num_states"`
	Start       []int     `json:"start"`
	Accept      []int     `json:"accept"`
	Epsilon     [][2]int  `json:"epsilon,omitempty"`
	Transitions []struct {
		From  int       `json:"from"`
		Label labelJSON `json:"label"`
		To    int       `json:"to"`
	} `json:"transitions"`
}

func (a automatonJSON) build() (*query.LabelNFA, error) {
	nfa := query.NewLabelNFA(a.NumStates)
	nfa.Start = a.Start
	for _, s := range a.Accept {
		nfa.Accept[s] = true
	}
	for _, e := range a.Epsilon {
		nfa.AddEpsilon(e[0], e[1])
	}
	for _, t := range a.Transitions {
		l, err := t.Label.toLabel()
		if err != nil {
			return nil, err
		}
		nfa.AddTransition(t.From, l, t.To)
	}
	return nfa, nil
}

type pathJSON struct {
	NumStates   int      `json:"num_states"`
	Start       []int    `json:"start"`
	Accept      []int    `json:"accept"`
	Epsilon     [][2]int `json:"epsilon,omitempty"`
	Transitions []struct {
		From      int    `json:"from"`
		Interface string `json:"interface"`
		Router    string `json:"router"`
		To        int    `json:"to"`
	} `json:"transitions"`
}

func (a pathJSON) build() *query.PathNFA {
	nfa := query.NewPathNFA(a.NumStates)
	nfa.Start = a.Start
	for _, s := range a.Accept {
		nfa.Accept[s] = true
	}
	for _, e := range a.Epsilon {
		nfa.AddEpsilon(e[0], e[1])
	}
	for _, t := range a.Transitions {
		sym := query.PathSymbol{Interface: t.Interface, Router: t.Router}
		if sym.Interface == "" {
			sym.Interface = "*"
		}
		if sym.Router == "" {
			sym.Router = "*"
		}
		nfa.AddTransition(t.From, sym, t.To)
	}
	return nfa
}

// LoadQueries reads a query list from JSON, each entry pre-split into its
// path/initial-header/final-header automata.
func LoadQueries(path string) ([]*query.Query, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading queries file %s: %w", path, err)
	}
	var qf queriesFile
	if err := json.Unmarshal(body, &qf); err != nil {
		return nil, fmt.Errorf("config: parsing queries file %s: %w", path, err)
	}

	out := make([]*query.Query, 0, len(qf.Queries))
	for _, qj := range qf.Queries {
		mode, err := query.ParseMode(qj.Mode)
		if err != nil {
			return nil, fmt.Errorf("config: query %q: %w", qj.Text, err)
		}
		init, err := qj.InitialHeader.build()
		if err != nil {
			return nil, fmt.Errorf("config: query %q: initial header: %w", qj.Text, err)
		}
		final, err := qj.FinalHeader.build()
		if err != nil {
			return nil, fmt.Errorf("config: query %q: final header: %w", qj.Text, err)
		}
		q := &query.Query{
			Text:          qj.Text,
			InitialHeader: init,
			Path:          qj.Path.build(),
			FinalHeader:   final,
			K:             qj.K,
			Mode:          mode,
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("config: query %q: %w", qj.Text, err)
		}
		out = append(out, q)
	}
	return out, nil
}
