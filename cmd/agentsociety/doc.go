/*
Package main is the agentsociety executable: one OS process hosting a
single agent's identity within a multi-agent project.

# Overview

cmd/agentsociety wires together every package in this module into a
running agent: the agentic loop (loop), its tool catalog (tooling), the
shared-directory message bus and peer HTTP server (bus, peerserver), the
agent registry (registry), the shared task pool (taskpool), usage
tracking (usage), and observability (telemetry). A deployment starts one
process per agent; the processes discover and reach each other entirely
through the shared directory and the registry's recorded peer URLs.

# Core types

  - Host            — implements tooling.LoopInvoker, routing a call to
    either an in-process Runner invocation (self) or the peer server's
    synchronous /api/invoke route (any other agent)
  - ProviderFactory  — the registration seam through which a deployment
    supplies a concrete llm.Provider; this module depends only on the
    abstract interface

# Subcommands

  - serve    start this agent's process (bus, peer server, heartbeat loop,
    metrics listener)
  - version  print build version information
  - health   probe another agent's peer server /api/status

# Lifecycle

serve loads configuration, builds the logger/collector/event sink, opens
the registry and task pool, starts the bus's poll loops and the peer
HTTP server, registers this agent, and runs a heartbeat ticker at
registry.HeartbeatInterval until an interrupt or SIGTERM arrives, at
which point it shuts the peer server and metrics listener down and marks
itself offline in the registry.
*/
package main
