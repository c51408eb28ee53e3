// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrixgraph

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// NodeKind distinguishes the three node types of the network graph.
type NodeKind string

const (
	KindRoom   NodeKind = "room"
	KindUser   NodeKind = "user"
	KindServer NodeKind = "server"
)

// Node is a single graph node. Label is a pseudonym, not a Matrix identifier.
type Node struct {
	idx   int64
	Kind  NodeKind
	Label uint64
}

// ID implements gonum's graph.Node.
func (n *Node) ID() int64 { return n.idx }

// DOTID implements dot.Node so DOT exports carry readable node names.
func (n *Node) DOTID() string { return n.String() }

func (n *Node) String() string {
	return fmt.Sprintf("%s_%d", n.Kind, n.Label)
}

// ServerInfo carries per-server reachability metadata gathered while
// probing the federation surface.
type ServerInfo struct {
	Reachable bool      `json:"reachable"`
	LastSeen  time.Time `json:"last_seen"`
	Software  string    `json:"software,omitempty"`
	Version   string    `json:"version,omitempty"`
	KeyIDs    []string  `json:"key_ids,omitempty"`
}

type nodeKey struct {
	kind NodeKind
	raw  string
}

type edgeKey struct {
	a, b int64
}

func orderedEdgeKey(a, b int64) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Graph is the recorded network graph. All mutating and reading methods are
// safe for concurrent use; internally everything happens under one lock.
type Graph struct {
	mu      sync.Mutex
	g       *simple.UndirectedGraph
	byKey   map[nodeKey]*Node
	edges   map[edgeKey]time.Time
	servers map[int64]*ServerInfo
	seed    maphash.Seed
	nextID  int64

	// now is swapped out in tests.
	now func() time.Time
}

// New returns an empty graph with a fresh pseudonymization seed.
func New() *Graph {
	return &Graph{
		g:       simple.NewUndirectedGraph(),
		byKey:   make(map[nodeKey]*Node),
		edges:   make(map[edgeKey]time.Time),
		servers: make(map[int64]*ServerInfo),
		seed:    maphash.MakeSeed(),
		now:     time.Now,
	}
}

func (g *Graph) node(kind NodeKind, raw string) *Node {
	key := nodeKey{kind, raw}
	if n, ok := g.byKey[key]; ok {
		return n
	}
	n := &Node{
		idx:   g.nextID,
		Kind:  kind,
		Label: maphash.String(g.seed, raw),
	}
	g.nextID++
	g.g.AddNode(n)
	g.byKey[key] = n
	return n
}

// Room returns the node for the given room ID, creating it on first sight.
func (g *Graph) Room(roomID string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.node(KindRoom, roomID)
}

// User returns the node for the given user ID, creating it on first sight.
func (g *Graph) User(userID string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.node(KindUser, userID)
}

// Server returns the node for the given server name, creating it on first sight.
func (g *Graph) Server(name string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.node(KindServer, name)
}

// Connect records an undirected edge between two nodes. Reconnecting an
// existing pair keeps the original discovered-at timestamp.
func (g *Graph) Connect(a, b *Node) {
	if a.idx == b.idx {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := orderedEdgeKey(a.idx, b.idx)
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = g.now()
	g.g.SetEdge(g.g.NewEdge(a, b))
}

// NoteServer attaches reachability metadata to a server node, creating the
// node if needed. Later notes overwrite earlier ones.
func (g *Graph) NoteServer(name string, info ServerInfo) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.node(KindServer, name)
	copied := info
	g.servers[n.idx] = &copied
	return n
}

// Counts summarizes the graph size by node kind.
type Counts struct {
	Rooms   int
	Users   int
	Servers int
	Edges   int
}

func (g *Graph) Counts() Counts {
	g.mu.Lock()
	defer g.mu.Unlock()
	var c Counts
	for _, n := range g.sortedNodes() {
		switch n.Kind {
		case KindRoom:
			c.Rooms++
		case KindUser:
			c.Users++
		case KindServer:
			c.Servers++
		}
	}
	c.Edges = len(g.edges)
	return c
}

// Degree returns the number of edges incident to the given node.
func (g *Graph) Degree(n *Node) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.g.From(n.idx).Len()
}

// callers must hold g.mu.
func (g *Graph) sortedNodes() []*Node {
	nodes := make([]*Node, 0, g.g.Nodes().Len())
	it := g.g.Nodes()
	for it.Next() {
		nodes = append(nodes, it.Node().(*Node))
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].idx < nodes[j].idx })
	return nodes
}

// callers must hold g.mu.
func (g *Graph) sortedEdges() []edgeKey {
	keys := make([]edgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})
	return keys
}

// Anonymized returns a structurally identical copy whose pseudonyms have
// been re-hashed with a fresh salt. The copy has no identifier index, so
// nothing in it can be traced back to a Matrix ID.
func (g *Graph) Anonymized() *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := New()
	salt := maphash.MakeSeed()
	var buf [8]byte
	mapped := make(map[int64]*Node, g.nextID)
	for _, n := range g.sortedNodes() {
		binary.LittleEndian.PutUint64(buf[:], n.Label)
		nn := &Node{
			idx:   out.nextID,
			Kind:  n.Kind,
			Label: maphash.Bytes(salt, buf[:]),
		}
		out.nextID++
		out.g.AddNode(nn)
		mapped[n.idx] = nn
		if info, ok := g.servers[n.idx]; ok {
			copied := *info
			out.servers[nn.idx] = &copied
		}
	}
	for _, k := range g.sortedEdges() {
		a, b := mapped[k.a], mapped[k.b]
		out.edges[orderedEdgeKey(a.idx, b.idx)] = g.edges[k]
		out.g.SetEdge(out.g.NewEdge(a, b))
	}
	return out
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortedNodes()
}

// Neighbors returns the nodes adjacent to n.
func (g *Graph) Neighbors(n *Node) []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	it := g.g.From(n.idx)
	neighbors := make([]*Node, 0, it.Len())
	for it.Next() {
		neighbors = append(neighbors, it.Node().(*Node))
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].idx < neighbors[j].idx })
	return neighbors
}

// ServerInfoFor returns the recorded reachability metadata for a server
// node, if any.
func (g *Graph) ServerInfoFor(n *Node) (ServerInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	info, ok := g.servers[n.idx]
	if !ok {
		return ServerInfo{}, false
	}
	return *info, true
}

var _ graph.Node = (*Node)(nil)
