// Package acquire downloads the same episode through two network identities.
//
// The Local channel is a direct HTTP client presenting a desktop podcast-app
// fingerprint. The Remote channel tunnels through a SOCKS5 proxy in another
// region and presents a different browser fingerprint, so that dynamic ad
// insertion picks a different ad pool. The remote fetch starts only after the
// local one finishes and a configurable delay has elapsed. Captures are named
// by podcast, episode, and channel so reruns overwrite instead of accumulate.
package acquire
