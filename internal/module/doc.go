// Package module is the store of record for display modules.
//
// A Module is one physical numeric or arrow indicator, keyed by its MAC
// address. Devices create and refresh modules through the devicesync
// package; staff edit and delete them through the Service in this package.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                         module package                         │
//	│                                                                │
//	│  ┌──────────────┐    ┌──────────────┐    ┌──────────────┐      │
//	│  │   Service    │───▶│    Store     │    │  Validation  │      │
//	│  │ (service.go) │    │  (store.go)  │    │(validation.go│      │
//	│  │ • Overview   │    │ • SQLite     │    │ • number 0-99│      │
//	│  │ • Update     │    │ • WithTx     │    │ • #RRGGBB    │      │
//	│  │ • Delete     │    │ • MAC unique │    │ • MAC        │      │
//	│  └──────┬───────┘    └──────────────┘    └──────────────┘      │
//	└─────────│──────────────────────────────────────────────────────┘
//	          ▼
//	   ConfigPusher (devicesync.Publisher) ──▶ on_module_update/<mac>
//
// # Invariants
//
//   - mac is unique and never changes after creation
//   - number is only meaningful for numeric modules and lies in [0, 99]
//   - online only changes from device connection and last-will signals
//   - last_update only changes when configuration is edited
//
// Mutations run inside Store.WithTx; a failure rolls back every field.
package module
