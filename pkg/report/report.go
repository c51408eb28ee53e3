// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package report turns a recorded network graph into human-readable
// output: the short status messages posted to the control room, and a
// fuller summary for the terminal and for JSON consumers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
)

// ServerRank is one server in the per-server breakdown. Servers are only
// ever identified by their pseudonym.
type ServerRank struct {
	Pseudonym string `json:"pseudonym"`
	Rooms     int    `json:"rooms"`
	Users     int    `json:"users"`
	Probed    bool   `json:"probed"`
	Reachable bool   `json:"reachable"`
	Software  string `json:"software,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Summary aggregates a graph into the numbers worth reporting.
type Summary struct {
	Rooms   int `json:"rooms"`
	Users   int `json:"users"`
	Servers int `json:"servers"`
	Edges   int `json:"edges"`

	ProbedServers      int `json:"probed_servers"`
	ReachableServers   int `json:"reachable_servers"`
	UnreachableServers int `json:"unreachable_servers"`

	LargestRoom  int     `json:"largest_room"`
	MeanRoomSize float64 `json:"mean_room_size"`

	TopServers []ServerRank `json:"top_servers"`
}

// topServerCount bounds the per-server breakdown.
const topServerCount = 10

// Summarize walks the graph once and computes the Summary.
func Summarize(g *matrixgraph.Graph) Summary {
	counts := g.Counts()
	s := Summary{
		Rooms:   counts.Rooms,
		Users:   counts.Users,
		Servers: counts.Servers,
		Edges:   counts.Edges,
	}

	totalRoomUsers := 0
	var ranks []ServerRank
	for _, node := range g.Nodes() {
		switch node.Kind {
		case matrixgraph.KindRoom:
			users := 0
			for _, peer := range g.Neighbors(node) {
				if peer.Kind == matrixgraph.KindUser {
					users++
				}
			}
			totalRoomUsers += users
			if users > s.LargestRoom {
				s.LargestRoom = users
			}
		case matrixgraph.KindServer:
			rank := ServerRank{Pseudonym: node.String()}
			for _, peer := range g.Neighbors(node) {
				switch peer.Kind {
				case matrixgraph.KindRoom:
					rank.Rooms++
				case matrixgraph.KindUser:
					rank.Users++
				}
			}
			if info, ok := g.ServerInfoFor(node); ok {
				rank.Probed = true
				rank.Reachable = info.Reachable
				rank.Software = info.Software
				rank.Version = info.Version
				s.ProbedServers++
				if info.Reachable {
					s.ReachableServers++
				} else {
					s.UnreachableServers++
				}
			}
			ranks = append(ranks, rank)
		}
	}
	if s.Rooms > 0 {
		s.MeanRoomSize = float64(totalRoomUsers) / float64(s.Rooms)
	}

	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Rooms != ranks[j].Rooms {
			return ranks[i].Rooms > ranks[j].Rooms
		}
		if ranks[i].Users != ranks[j].Users {
			return ranks[i].Users > ranks[j].Users
		}
		return ranks[i].Pseudonym < ranks[j].Pseudonym
	})
	if len(ranks) > topServerCount {
		ranks = ranks[:topServerCount]
	}
	s.TopServers = ranks
	return s
}

// WriteJSON writes the summary as indented JSON.
func (s Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(s)
}

// JoinMessage is the control room message posted after joining rooms.
func JoinMessage(joined, invited, left int) string {
	return fmt.Sprintf("Good evening, Gentlemen! "+
		"Today I learned about %d new rooms, was invited to %d new rooms, and I'm not a member of %d rooms.",
		joined, invited, left)
}

// CrawlMessage is the control room message posted after a membership crawl.
func CrawlMessage(rooms, servers, users int) string {
	return fmt.Sprintf("Good evening, Gentlemen! "+
		"On my travelling, I visited %d rooms on %d different servers, and saw %d people!",
		rooms, servers, users)
}

// LeaveMessage is the control room message posted before departing.
func LeaveMessage(left, joined int) string {
	return fmt.Sprintf("Good bye, Gentlemen! "+
		"Today, I departed from %d of the %d rooms I visited.",
		left, joined)
}
