// Package main hosts the apkharvest CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, applies flag overrides,
// and hands the result to the harvest package. Keep this package thin: new
// behavior belongs in the internal packages and is surfaced here as flags or
// subcommands.
package main
