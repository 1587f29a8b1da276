// Package broadcast delivers one composed message to a fixed recipient
// snapshot.
//
// Jobs are queued and executed one at a time by a single worker. Inside a job
// recipients are visited sequentially with a fixed pause between attempts.
// A failed recipient is recorded and the run continues. If the service stops
// mid-run, unvisited recipients are counted as failed so that
// Sent+Failed == Total holds for every finished report.
package broadcast
