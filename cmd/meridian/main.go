// Meridian is a policy-pipeline API gateway.
//
// It routes inbound requests to configured API endpoints and runs each one
// through an ordered policy pipeline: OAuth2 bearer validation, scripted
// request rewriting, structured logging, fixed-window rate limiting, and
// backend proxying.
//
// Usage:
//
//	# Start the gateway with the default configuration file
//	meridian run
//
//	# Start with a custom configuration file
//	meridian run --config /etc/meridian/config.yaml
//
//	# Validate a configuration without serving
//	meridian validate
//
//	# Show version information
//	meridian version
package main

func main() {
	Execute()
}
