// Package jsonfile persists certificate orders and DNS provider
// configurations in a single JSON state file.
//
// It is the storage backend for single-node deployments: the whole state
// is held in memory and flushed to disk atomically (write to a temporary
// file, then rename) on every mutation, so a crash never leaves a
// half-written state file behind. The file is created with mode 0600
// because it carries account keys and provider credentials.
//
// # Usage Example
//
//	store, err := jsonfile.Open("/var/lib/certflow/state.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc := renewal.New(store, dns.DefaultRegistry())
//
// Reads and writes are safe for concurrent use. Returned orders and
// configurations are deep copies; mutating them does not affect the store
// until they are saved back.
package jsonfile
