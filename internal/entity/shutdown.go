// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package entity

// ServerState is the server entity's QuickSave.State value.
type ServerState int

const (
	ServerIdle ServerState = iota
	ServerActive
	ServerDown
)

// ShutdownType is the shutdown request's type mask.
type ShutdownType int

const (
	ShutdownImmediate ShutdownType = 1 << iota
	ShutdownDelayed
	ShutdownQuick
	ShutdownSignal
)

// ShutdownTarget is the shutdown request's target mask.
type ShutdownTarget int

const (
	TargetPrimary ShutdownTarget = 1 << iota
	TargetSecondary
	TargetIdleSecondary
	TargetScheduler
)
