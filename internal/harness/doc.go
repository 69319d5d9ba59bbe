// Package harness runs collaborative editing scenarios.
//
// A scenario names a set of peers, a list of steps (edits, undo/redo and
// synchronization) and assertions on the resulting replicas and generated
// code. Each run is deterministic: generated ids are <actor>-1, <actor>-2,
// ..., clocks start at zero and delivery order is fixed by the steps.
//
// # Scenario Format
//
//	name: concurrent_start
//	description: "Two users add a start handler at the same time"
//	entity: hero
//	peers: [alice, bob]
//	transport: mesh          # mesh (default) or relay
//	steps:
//	  - peer: alice
//	    do: create_node
//	    args: { id: e1, kind: onStart }
//	  - peer: bob
//	    do: create_node
//	    args: { id: e2, kind: onStart }
//	  - do: sync
//	  - peer: alice
//	    do: undo
//	    expect: empty
//	assertions:
//	  - type: converged
//	  - type: scopes
//	    functions: [start_hero, start_hero$2]
//
// # Steps
//
// Edit steps map one to one onto engine intents: create_node, delete_node,
// set_field, connect, connect_next, disconnect, create_variable,
// rename_variable, delete_variable, set_variable_field. undo and redo act
// on the peer's own history. sync delivers deltas: between two peers with
// from/to (optionally one at a time in a seeded random order), or between
// everyone when both are omitted.
//
// expect is ok (default), rejected (the edit was refused) or empty (undo or
// redo had nothing to do).
//
// # Transports
//
// mesh hands deltas between in-memory replicas directly. relay connects
// every peer through a synchronization channel to an in-process relay hub;
// there sync waits until every peer has been acknowledged and holds the
// relay's state, and from/to is not available.
//
// # Assertion Types
//
//   - converged: every peer holds the same delta log
//   - node_alive / node_dead: node liveness on a peer
//   - slot: which child occupies node.slot (empty child: none)
//   - next: which statement follows node
//   - field: a node's field value
//   - variables: the peer's variable display names, in order
//   - scopes: generated function names, in order
//   - failures: number of scopes that failed to generate
//
// Assertions read the first peer unless peer is set.
package harness
