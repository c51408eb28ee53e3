// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traveller

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/florianjacob/dsn-traveller/pkg/matrixgraph"
	"maunium.net/go/mautrix/id"
)

// TestCrawl_RecordsMembership verifies the crawl builds the expected
// room/user/server structure and leaves the bot itself out.
func TestCrawl_RecordsMembership(t *testing.T) {
	t.Parallel()
	fake := newFakeHS(t)
	fake.JoinedRooms = []id.RoomID{"!r1:example.org", "!r2:example.org"}
	fake.Members["!r1:example.org"] = []id.UserID{
		"@alice:example.org",
		"@bob:other.org",
		testUserID,
	}
	fake.Members["!r2:example.org"] = []id.UserID{"@alice:example.org"}
	tr := newTestTraveller(t, fake, Options{})

	g := matrixgraph.New()
	stats, err := tr.Crawl(context.Background(), g)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if stats != (CrawlStats{Rooms: 2, Users: 2, Servers: 2}) {
		t.Errorf("unexpected stats %+v", stats)
	}
	counts := g.Counts()
	// alice-example.org, alice-r1, alice-r2, bob-other.org, bob-r1,
	// example.org-r1, example.org-r2, other.org-r1
	if counts.Edges != 8 {
		t.Errorf("expected 8 edges, got %d", counts.Edges)
	}
}

// TestCrawl_MemberIgnorePattern verifies opted-out servers' users are kept
// out of the graph entirely.
func TestCrawl_MemberIgnorePattern(t *testing.T) {
	t.Parallel()
	fake := newFakeHS(t)
	fake.JoinedRooms = []id.RoomID{"!r1:example.org"}
	fake.Members["!r1:example.org"] = []id.UserID{
		"@alice:example.org",
		"@voyager:t2bot.io",
		"@someone:optout.example",
	}
	tr := newTestTraveller(t, fake, Options{
		IgnoreMembers: `^(@voyager:t2bot\.io|@.*:optout\.example)$`,
	})

	g := matrixgraph.New()
	stats, err := tr.Crawl(context.Background(), g)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if stats.Users != 1 || stats.Servers != 1 {
		t.Errorf("ignored members leaked into the graph: %+v", stats)
	}
}

// TestCrawl_RoomFailureSkipped verifies a failing member query skips the
// room but keeps the crawl going.
func TestCrawl_RoomFailureSkipped(t *testing.T) {
	t.Parallel()
	fake := newFakeHS(t)
	fake.JoinedRooms = []id.RoomID{"!broken:example.org", "!ok:example.org"}
	fake.Members["!ok:example.org"] = []id.UserID{"@alice:example.org"}
	fake.FailPaths["!broken:example.org"] = http.StatusInternalServerError
	tr := newTestTraveller(t, fake, Options{})

	g := matrixgraph.New()
	stats, err := tr.Crawl(context.Background(), g)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if stats.Rooms != 1 {
		t.Errorf("expected the intact room to be crawled, got %+v", stats)
	}
}

// TestCrawl_Cancellation verifies the pacing pause honors context
// cancellation between rooms.
func TestCrawl_Cancellation(t *testing.T) {
	t.Parallel()
	fake := newFakeHS(t)
	fake.JoinedRooms = []id.RoomID{"!r1:example.org", "!r2:example.org"}
	fake.Members["!r1:example.org"] = []id.UserID{"@alice:example.org"}
	tr := newTestTraveller(t, fake, Options{CrawlDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// cancel once the first room is done and the pause runs
		for fake.CallCount("/joined_members") == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := tr.Crawl(ctx, matrixgraph.New())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
