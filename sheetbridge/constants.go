// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

// Origin tags for records and sync events
const (
	SourceSheet  = "SHEET"
	SourceDB     = "DB"
	SourceManual = "MANUAL"
)

// Operation constants for sync events
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Terminal statuses for reconciliation results
const (
	StInserted = "inserted"
	StUpdated  = "updated"
	StDeleted  = "deleted"
	StIgnored  = "ignored"
	StNotFound = "not_found"
	StQueued   = "queued"
)

// Reason constants attached to ignored results
const (
	ReasonStaleVersion = "stale_version"
	ReasonLoopback     = "loopback"
)

// Webhook audit statuses
const (
	WebhookReceived  = "RECEIVED"
	WebhookProcessed = "PROCESSED"
	WebhookError     = "ERROR"
)

// Conflict resolution strategies
const (
	StrategyLastWriteWins = "last_write_wins"
)
