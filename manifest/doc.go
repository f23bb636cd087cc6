// Package manifest implements the Hub Manifest: the YAML document listing
// every Repo Entry a Hub Supervisor tracks (spec §3 "Hub Manifest", §4.5
// "Discovery"). It round-trips through gopkg.in/yaml.v3 into hand-rolled
// structs rather than map[string]interface{}, the same fidelity choice the
// ticket package makes for frontmatter, so unknown or hand-edited fields
// survive a load/save cycle unmolested.
//
// The manifest is append-only in spirit: Reconcile never deletes an entry
// whose directory has vanished from disk, it marks it missing instead.
package manifest
