// Package types defines the JSON error envelope returned by switchboard
// itself, as opposed to errors relayed verbatim from an upstream provider.
//
// The envelope follows the shape the three CLIs already understand:
//
//	{
//	  "error": {
//	    "message": "no eligible provider for claude (attempted: primary, backup)",
//	    "type": "bad_gateway",
//	    "code": "no_eligible_provider"
//	  }
//	}
//
// The control API under /_switchboard/ uses the same envelope.
package types
