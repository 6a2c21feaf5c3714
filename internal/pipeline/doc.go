// Package pipeline turns one episode URL into a committed, ad-stripped
// artifact.
//
// Process acquires the episode twice, short-circuits when both captures are
// byte-identical, otherwise normalizes and aligns them, encodes the result,
// and applies the retained-duration guard. When the guard trips, the untouched
// local capture is published instead. Scratch files are removed on every exit.
package pipeline
