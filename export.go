package hubbub

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

// Diagnostics are a read-only projection of registry state, off the hot
// path. Nothing here mutates the registry.

var snapshotJSON = []byte(`{"type":"snapshot"}`)

// DOT renders the registry as a Graphviz digraph: channel nodes, solid
// reachability edges labeled with the handlers that created them, and
// feeds as dashed boxes (they bypass the cycle-checked graph). Output is
// deterministic: everything is sorted.
func (r *Registry) DOT() string {
	var b strings.Builder
	b.WriteString("digraph hubbub {\n")

	names := make([]string, 0, r.channels.Len())
	for pair := r.channels.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	for _, name := range sortedCopy(names) {
		fmt.Fprintf(&b, "\t%q;\n", name)
	}

	for _, edge := range r.graph.Edges() {
		handlers := r.hopHandlers(edge[0], edge[1], newFrame(r, Identity{}))
		fmt.Fprintf(&b, "\t%q -> %q [label=%q];\n", edge[0], edge[1], strings.Join(handlers, ","))
	}

	feedNames := make([]string, 0, r.feeds.Len())
	for pair := r.feeds.Oldest(); pair != nil; pair = pair.Next() {
		feedNames = append(feedNames, pair.Key)
	}
	for _, name := range sortedCopy(feedNames) {
		rec, _ := r.feeds.Get(name)
		label := fmt.Sprintf("%s\\nfeeders: %s\\nfeedees: %s",
			name,
			strings.Join(memberNames(rec.feeders), ","),
			strings.Join(memberNames(rec.feedees), ","))
		fmt.Fprintf(&b, "\t%q [shape=box, style=dashed, label=\"%s\"];\n", name, label)
	}

	b.WriteString("}")
	return b.String()
}

// Snapshot is the exportable view of the registry: channel memberships,
// reachability edges with their contributing handlers, and feeds.
type Snapshot struct {
	GeneratedAt strfmt.DateTime `json:"generated_at"`
	Channels    []ChannelState  `json:"channels"`
	Feeds       []FeedState     `json:"feeds,omitempty"`
	Edges       []EdgeState     `json:"edges,omitempty"`
}

type ChannelState struct {
	Name      string   `json:"name"`
	Listeners []string `json:"listeners,omitempty"`
	Emitters  []string `json:"emitters,omitempty"`
}

type FeedState struct {
	Name    string   `json:"name"`
	Feeders []string `json:"feeders,omitempty"`
	Feedees []string `json:"feedees,omitempty"`
}

type EdgeState struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Handlers []string `json:"handlers,omitempty"`
}

// Snapshot captures the current registry state.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{GeneratedAt: strfmt.DateTime(time.Now().UTC())}

	for pair := r.channels.Oldest(); pair != nil; pair = pair.Next() {
		s.Channels = append(s.Channels, ChannelState{
			Name:      pair.Key,
			Listeners: memberNames(pair.Value.listeners),
			Emitters:  memberNames(pair.Value.emitters),
		})
	}
	for pair := r.feeds.Oldest(); pair != nil; pair = pair.Next() {
		s.Feeds = append(s.Feeds, FeedState{
			Name:    pair.Key,
			Feeders: memberNames(pair.Value.feeders),
			Feedees: memberNames(pair.Value.feedees),
		})
	}
	for _, edge := range r.graph.Edges() {
		s.Edges = append(s.Edges, EdgeState{
			From:     edge[0],
			To:       edge[1],
			Handlers: r.hopHandlers(edge[0], edge[1], newFrame(r, Identity{})),
		})
	}
	return s
}

// MarshalJSON implements custom JSON marshaling for Snapshot
func (s Snapshot) MarshalJSON() ([]byte, error) {
	result := snapshotJSON

	var err error
	result, err = sjson.SetBytes(result, "generated_at", s.GeneratedAt.String())
	if err != nil {
		return nil, err
	}

	channels, err := json.Marshal(s.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channels: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "channels", channels)
	if err != nil {
		return nil, err
	}

	if len(s.Feeds) > 0 {
		feeds, err := json.Marshal(s.Feeds)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal feeds: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "feeds", feeds)
		if err != nil {
			return nil, err
		}
	}

	if len(s.Edges) > 0 {
		edges, err := json.Marshal(s.Edges)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal edges: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "edges", edges)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func memberNames(entries []memberEntry) []string {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.identity.Name] = struct{}{}
	}
	return sorted(set)
}

func sortedCopy(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return sorted(set)
}
