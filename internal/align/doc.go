// Package align implements the differential alignment engine.
//
// Two comparison-fidelity PCM streams of the same episode, one captured
// directly (Local) and one through the remote proxy (Remote), are walked in
// fixed windows. Windows present in both are kept; windows that only exist in
// Local are dropped. When the streams diverge, Remote is searched forward for
// the current Local window, and the search bound grows with every consecutive
// dropped window so that long ad breaks are eventually bridged. Kept windows
// are emitted from a third, quality-fidelity rendering of Local so the output
// does not inherit the comparison stream's reduced resolution.
//
// The engine is single-threaded, holds no shared state, and checks its
// context once per window.
package align
