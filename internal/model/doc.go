// Package model defines shared data types used across the feed engine.
//
// Conventions:
//   - Prices and volumes: decimal.Decimal (exact, no float drift in aggregation)
//   - Timestamps: int64 milliseconds since Unix epoch (exchange time)
//   - IDs: string for symbols, uuid.UUID for transaction IDs
package model
