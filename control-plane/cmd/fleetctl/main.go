// Command fleetctl is the operator CLI for the fleet control plane.
//
// # Usage
//
//	fleetctl mission create --name "north ridge" --ruleset ruleset.yaml
//	fleetctl mission launch <mission-id>
//	fleetctl swarm coordinate --file swarm.yaml
//	fleetctl events --mission <mission-id> --severity warning
//
// The server and credentials come from --server/--api-key/--operator or the
// FLEETCTL_SERVER, FLEETCTL_API_KEY and FLEETCTL_OPERATOR variables.
package main

func main() {
	Execute()
}
