// Package providers holds the upstream provider definitions that each CLI app
// can be routed to.
//
// # Overview
//
// A Provider is an immutable upstream endpoint (base URL plus credential) bound
// to exactly one App. Providers for an app are kept in a Snapshot ordered by
// ascending priority; the Snapshot indexes providers by slot so that hot paths
// (failover resolution, breaker lookups) never walk pointer graphs.
//
// The Registry owns one Snapshot per app. Reconfiguration replaces an app's
// snapshot atomically; readers that already hold the previous snapshot keep
// using it until they finish.
//
// # Basic Usage
//
//	reg := providers.NewRegistry()
//	_, err := reg.Replace(providers.AppClaude, []providers.Provider{
//	    {ID: "primary", App: providers.AppClaude, BaseURL: "https://api.anthropic.com", Credential: key, Priority: 0},
//	    {ID: "backup", App: providers.AppClaude, BaseURL: "https://relay.example.com", Credential: key2, Priority: 1},
//	})
//
//	snap := reg.Snapshot(providers.AppClaude)
//	for i := 0; i < snap.Len(); i++ {
//	    fmt.Println(snap.At(i).ID)
//	}
package providers
