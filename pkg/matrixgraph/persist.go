// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrixgraph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// GraphFile is the JSON graph document name inside the graph directory.
const GraphFile = "graph.json"

type jsonNode struct {
	Kind   NodeKind    `json:"kind"`
	Label  uint64      `json:"id"`
	Server *ServerInfo `json:"server,omitempty"`
}

type jsonEdge struct {
	A            int       `json:"a"`
	B            int       `json:"b"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

type jsonGraph struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

// WriteJSON serializes the graph as JSON.
func (g *Graph) WriteJSON(w io.Writer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	doc := jsonGraph{}
	position := make(map[int64]int)
	for i, n := range g.sortedNodes() {
		position[n.idx] = i
		doc.Nodes = append(doc.Nodes, jsonNode{
			Kind:   n.Kind,
			Label:  n.Label,
			Server: g.servers[n.idx],
		})
	}
	for _, k := range g.sortedEdges() {
		doc.Edges = append(doc.Edges, jsonEdge{
			A:            position[k.a],
			B:            position[k.b],
			DiscoveredAt: g.edges[k],
		})
	}
	enc := json.NewEncoder(w)
	return enc.Encode(&doc)
}

// Read deserializes a graph previously written with WriteJSON. The loaded
// graph carries pseudonyms only; identifier lookups are not possible on it.
func Read(r io.Reader) (*Graph, error) {
	var doc jsonGraph
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	g := New()
	nodes := make([]*Node, len(doc.Nodes))
	for i, jn := range doc.Nodes {
		n := &Node{idx: g.nextID, Kind: jn.Kind, Label: jn.Label}
		g.nextID++
		g.g.AddNode(n)
		nodes[i] = n
		if jn.Server != nil {
			copied := *jn.Server
			g.servers[n.idx] = &copied
		}
	}
	for _, je := range doc.Edges {
		if je.A < 0 || je.A >= len(nodes) || je.B < 0 || je.B >= len(nodes) {
			return nil, fmt.Errorf("edge (%d, %d) references unknown node", je.A, je.B)
		}
		a, b := nodes[je.A], nodes[je.B]
		if a.idx == b.idx {
			return nil, fmt.Errorf("self edge on node %d", je.A)
		}
		key := orderedEdgeKey(a.idx, b.idx)
		if _, ok := g.edges[key]; ok {
			continue
		}
		g.edges[key] = je.DiscoveredAt
		g.g.SetEdge(g.g.NewEdge(a, b))
	}
	return g, nil
}

// Save writes graph.json plus the DOT and GraphML exports into dir,
// creating it if needed.
func (g *Graph) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}
	if err := writeFile(filepath.Join(dir, GraphFile), g.WriteJSON); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "graph.dot"), g.WriteDOT); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, "graph.graphml"), g.WriteGraphML)
}

// Load reads graph.json from dir.
func Load(dir string) (*Graph, error) {
	f, err := os.Open(filepath.Join(dir, GraphFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open graph: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
