// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

// Package process provides binary entrypoint helpers and target-process
// liveness tracking.
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger), for use in main().
//   - Watcher: polls whether a target process id is still alive, used
//     by the session broker to detect TargetLost.
package process
