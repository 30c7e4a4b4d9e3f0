// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Package natmap opens the hosting port on the local gateway via UPnP.
//
// [Mapper.Establish] runs the five-stage sequence a hosting session
// needs before it can hand out a session code: discover an Internet
// Gateway Device on the LAN, select one, determine this host's LAN
// address as seen by the gateway, request a TCP port mapping from the
// configured external port to the same port here, and query the
// gateway's public address. Each stage is a distinct failure point;
// failures carry the [Stage] in a [MappingError] because "the router
// said no" is diagnostically opaque to end users and the stages fail for
// different reasons (UPnP disabled, firewall, double NAT, ...).
//
// The external port is a fixed, configured value rather than a
// per-session random one, so only one session can be hosted per machine
// at a time: Establish is not reentrant. [Mapper.Release] deletes the
// mapping when the session ends.
package natmap
