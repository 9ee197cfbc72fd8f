// Package version provides version information for the oracle-feeder application.
package version

// Version is the current version of the oracle-feeder application.
const Version = "0.3.0"

// AgentString returns the full agent string with versioning.
func AgentString() string {
	return "oracle-feeder@v" + Version
}
