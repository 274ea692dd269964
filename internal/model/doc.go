// Package model defines the entities shared by the weekfold sync engine:
// tasks, labels, templates, recurrence series, working-log items, and the
// per-collection sync checkpoints.
//
// Every syncable entity carries:
//   - a soft-delete tombstone (DeletedAt); hard deletion is an explicit
//     maintenance operation, never part of ordinary sync
//   - a server-authoritative UpdatedAt used for last-write-wins conflict
//     resolution
//   - a NeedsSync flag marking unsynced local changes
//
// The structs double as GORM models for the reference local store and as
// JSON payloads for the remote client, so field tags cover both.
package model
