// Package dtm implements the Dynamic Traffic Management control loop for a
// site with two ISP uplinks shared by local and tunnel traffic.
//
// # Reading Guide
//
// Start with these files:
//   - vectors.go: X (measured), Z (tunnel), R (reference) and C (compensation) vectors
//   - state.go: per-AS X/R pair storage
//   - compensation.go: X,R to C
//   - manager.go: the TrafficManager facade that ties the pieces together
//
// # Architecture
//
// The dtm package owns the value types and the collaborator interfaces;
// implementations live in sub-packages:
//   - dtm/economic/: reference-vector optimizer, sample aggregation, per-link-pair sessions
//   - dtm/inventory/: YAML-backed Directory
//   - dtm/peer/: HTTP PeerSender
//   - dtm/device/: dry-run DeviceConfigurator
//   - dtm/audit/: SQLite history of closed accounting periods
//   - dtm/api/: HTTP ingest facade
//   - dtm/trace/: decision trace recording
//
// # Key Interfaces
//
//   - Directory: cost functions, links, schedule and control parameters, peers
//   - PeerSender: fire-and-forget delivery of C (and optionally R) to a remote peer
//   - DeviceConfigurator: policer and filter configuration on border routers
//
// Compensation vectors are computed and sent on a Dispatcher worker pool so
// that reporting paths never block on peer I/O.
package dtm
