// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrixgraph

import (
	"encoding/xml"
	"fmt"
	"io"

	"gonum.org/v1/gonum/graph/encoding/dot"
)

// WriteDOT exports the graph in Graphviz DOT format. Nodes are labelled
// with their pseudonym strings, edges carry no labels.
func (g *Graph) WriteDOT(w io.Writer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := dot.Marshal(g.g, "dsn", "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal dot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// WriteGraphML exports the graph in GraphML format with the node pseudonym
// as the single node attribute. This is the interchange format the
// statistical analysis tooling reads.
func (g *Graph) WriteGraphML(w io.Writer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	root := graphmlDoc{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphmlKey{
			{ID: "weight", For: "node", AttrName: "weight", AttrType: "string"},
		},
		Graph: graphmlGraph{EdgeDefault: "undirected"},
	}
	position := make(map[int64]int)
	for i, n := range g.sortedNodes() {
		position[n.idx] = i
		root.Graph.Nodes = append(root.Graph.Nodes, graphmlNode{
			ID:   fmt.Sprintf("n%d", i),
			Data: &graphmlData{Key: "weight", Value: n.String()},
		})
	}
	for _, k := range g.sortedEdges() {
		root.Graph.Edges = append(root.Graph.Edges, graphmlEdge{
			Source: fmt.Sprintf("n%d", position[k.a]),
			Target: fmt.Sprintf("n%d", position[k.b]),
		})
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode graphml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

type graphmlDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

type graphmlKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphmlGraph struct {
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphmlNode `xml:"node"`
	Edges       []graphmlEdge `xml:"edge"`
}

type graphmlNode struct {
	ID   string       `xml:"id,attr"`
	Data *graphmlData `xml:"data,omitempty"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type graphmlEdge struct {
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
}
