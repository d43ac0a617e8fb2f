// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

/*
Package supervisor provides process supervision for Connectlify using suture v4.

This package implements a hierarchical supervisor tree that manages the lifecycle
of all long-running services in the application. It provides Erlang/OTP-style
supervision with automatic restart, failure isolation, and graceful shutdown.

# Overview

The supervisor tree organizes services into three layers for failure isolation:

	RootSupervisor ("connectlify")
	├── DataSupervisor ("data-layer")
	│   └── backup.Manager (if BACKUP_ENABLED)
	├── MessagingSupervisor ("messaging-layer")
	│   └── WebSocketHubService
	├── BillingSupervisor ("billing-layer")
	│   └── billing.Scheduler
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

This hierarchy ensures that:
  - A crash in the billing scheduler doesn't affect WebSocket connections
  - Hub failures don't impact the API's ability to serve requests
  - Backup failures never touch request handling
  - Each layer can restart independently

# Failure Handling

The supervisor uses a failure counter with exponential decay:

 1. Each service failure increments the counter
 2. Counter decays exponentially over time (FailureDecay seconds)
 3. When counter exceeds FailureThreshold, supervisor enters backoff
 4. During backoff, restarts are delayed by FailureBackoff duration

Default values match suture's production-ready defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# What Is NOT Supervised

BadgerDB is intentionally not supervised:
  - It's an embedded library, not a long-running service
  - Crashes in Badger would require process restart anyway

Carrier and payment API calls are not supervised either; the circuit
breaker in internal/carrier provides failure isolation for those.

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}

# See Also

  - internal/supervisor/services: Service wrappers
  - github.com/thejerf/suture/v4: Underlying library
*/
package supervisor
