// Package main hosts the dailete CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground, processes
// single episodes on demand, and manages subscriptions and the processing
// queue directly against the local catalog. Configuration resolution happens
// once per invocation in commandContext so subcommands can focus on output.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it here.
package main
