// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
)

// crawlGraph builds a small two-server network: a big room federated
// between both servers, a small room on the first, and a dead third server
// seen only through probing.
func crawlGraph() *matrixgraph.Graph {
	g := matrixgraph.New()

	big := g.Room("!big:one.example.org")
	small := g.Room("!small:one.example.org")
	one := g.Server("one.example.org")

	for _, userID := range []string{"@a:one.example.org", "@b:one.example.org", "@c:two.example.org"} {
		user := g.User(userID)
		server := g.Server(strings.SplitN(userID, ":", 2)[1])
		g.Connect(user, big)
		g.Connect(user, server)
		g.Connect(server, big)
	}
	g.Connect(g.User("@a:one.example.org"), small)
	g.Connect(one, small)

	g.NoteServer("one.example.org", matrixgraph.ServerInfo{
		Reachable: true,
		Software:  "Synapse",
		Version:   "1.98.0",
		LastSeen:  time.Now(),
	})
	g.NoteServer("dead.example.org", matrixgraph.ServerInfo{LastSeen: time.Now()})

	return g
}

// TestSummarize checks counts, reachability tallies and room size stats.
func TestSummarize(t *testing.T) {
	t.Parallel()
	s := Summarize(crawlGraph())

	assert.Equal(t, 2, s.Rooms)
	assert.Equal(t, 3, s.Users)
	assert.Equal(t, 3, s.Servers)
	assert.Equal(t, 2, s.ProbedServers)
	assert.Equal(t, 1, s.ReachableServers)
	assert.Equal(t, 1, s.UnreachableServers)
	assert.Equal(t, 3, s.LargestRoom)
	assert.InDelta(t, 2.0, s.MeanRoomSize, 0.001)
	assert.Len(t, s.TopServers, 3)
}

// TestSummarize_TopServerOrder checks that the breakdown is sorted by room
// count and reports probe results per server.
func TestSummarize_TopServerOrder(t *testing.T) {
	t.Parallel()
	s := Summarize(crawlGraph())

	require.NotEmpty(t, s.TopServers)
	first := s.TopServers[0]
	assert.Equal(t, 2, first.Rooms, "server in both rooms should rank first")
	assert.True(t, first.Probed)
	assert.True(t, first.Reachable)
	assert.Equal(t, "Synapse", first.Software)

	last := s.TopServers[len(s.TopServers)-1]
	assert.Equal(t, 0, last.Rooms, "probed-only server has no rooms")
	assert.False(t, last.Reachable)

	for i := 1; i < len(s.TopServers); i++ {
		assert.GreaterOrEqual(t, s.TopServers[i-1].Rooms, s.TopServers[i].Rooms)
	}
}

// TestSummarize_Empty checks that an empty graph summarizes to zeroes
// without dividing by zero.
func TestSummarize_Empty(t *testing.T) {
	t.Parallel()
	s := Summarize(matrixgraph.New())
	assert.Zero(t, s.Rooms)
	assert.Zero(t, s.MeanRoomSize)
	assert.Empty(t, s.TopServers)
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()
	s := Summarize(crawlGraph())
	var buf bytes.Buffer
	require.NoError(t, s.WriteJSON(&buf))

	var decoded Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, s, decoded)
}

// TestMessages pins the exact control room wording.
func TestMessages(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"Good evening, Gentlemen! Today I learned about 4 new rooms, was invited to 2 new rooms, and I'm not a member of 1 rooms.",
		JoinMessage(4, 2, 1))
	assert.Equal(t,
		"Good evening, Gentlemen! On my travelling, I visited 7 rooms on 3 different servers, and saw 42 people!",
		CrawlMessage(7, 3, 42))
	assert.Equal(t,
		"Good bye, Gentlemen! Today, I departed from 5 of the 6 rooms I visited.",
		LeaveMessage(5, 6))
}

// TestRender checks that the terminal rendering carries the headline
// numbers and the server table, without leaking anything but pseudonyms.
func TestRender(t *testing.T) {
	t.Parallel()
	s := Summarize(crawlGraph())
	out := Render(s)

	assert.Contains(t, out, "DSN Traveller")
	assert.Contains(t, out, "Rooms")
	assert.Contains(t, out, "Reachable servers")
	assert.Contains(t, out, "Synapse")
	assert.NotContains(t, out, "one.example.org")
	for _, rank := range s.TopServers {
		assert.Contains(t, out, rank.Pseudonym)
	}
}
