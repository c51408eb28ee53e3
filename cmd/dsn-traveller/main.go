// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command dsn-traveller travels the Matrix network, for Science!
//
// It joins the rooms it is told about, records who shares which rooms over
// which servers into a pseudonymized graph, probes the federation surface
// of the servers it discovers, and finally departs from everything again.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
