package node

import "peerscope/internal/proto"

// directory accumulates the status responses received since the last
// clear. It is owned by the actor loop and needs no lock: every read
// and write happens on that one goroutine, and readers outside the loop
// only ever see snapshots.
type directory struct {
	records map[string]proto.PeerRecord
}

func newDirectory() *directory {
	return &directory{records: make(map[string]proto.PeerRecord)}
}

// insert stores a record keyed by the reporting peer's id, replacing any
// previous record wholesale.
func (d *directory) insert(rec proto.PeerRecord) {
	d.records[rec.ID] = rec
}

func (d *directory) clear() {
	d.records = make(map[string]proto.PeerRecord)
}

// snapshot returns a copy safe to hand outside the actor loop.
func (d *directory) snapshot() map[string]proto.PeerRecord {
	out := make(map[string]proto.PeerRecord, len(d.records))
	for id, rec := range d.records {
		out[id] = rec
	}
	return out
}
