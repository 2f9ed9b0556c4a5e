// Package model provides the record types shared by every stage of the
// export pipeline.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Publications and subscriptions are read-only snapshots of store rows
//   - Subscription ids are int64 and map to bit positions of the match blob
//   - All JSON tags use snake_case
package model
