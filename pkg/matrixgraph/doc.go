// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixgraph records the network graph a travelling bot discovers:
// rooms, users and servers as nodes, membership and federation links as
// undirected edges.
//
// Raw Matrix identifiers never enter the graph. Every identifier is reduced
// to a pseudonym by a keyed hash whose seed is chosen fresh per process, and
// [Graph.Anonymized] re-salts all pseudonyms once more before a graph leaves
// the process, so two exports of the same network are not linkable.
//
// Recording is idempotent: adding a node or edge that is already present is
// a no-op, so re-discovery during a crawl cannot produce duplicates.
//
// The graph persists as JSON and exports to Graphviz DOT and GraphML for
// downstream network analysis.
package matrixgraph
