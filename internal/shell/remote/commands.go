package remote

import (
	"fmt"
	"strings"
)

// =============================================================================
// Remote Command Construction
// =============================================================================

// ContainerSpec describes the single named container the deployer manages on
// the target host.
type ContainerSpec struct {
	Name          string
	HostPort      int
	ContainerPort int
}

// PullCommand returns the remote command that pulls the versioned image.
func PullCommand(imageRef string) string {
	return "docker pull " + imageRef
}

// StopCommand returns the remote command that stops the named container.
func StopCommand(name string) string {
	return "docker stop " + name
}

// RemoveCommand returns the remote command that removes the named container.
func RemoveCommand(name string) string {
	return "docker rm " + name
}

// RunCommand returns the remote command that starts the new container bound
// to the service's fixed port.
func RunCommand(imageRef string, spec ContainerSpec) string {
	return fmt.Sprintf("docker run -d --name %s --restart unless-stopped -p %d:%d %s",
		spec.Name, spec.HostPort, spec.ContainerPort, imageRef)
}

// containerAbsent reports whether the docker CLI output indicates that the
// stop/rm target did not exist. Absence of a prior instance is not a failure.
func containerAbsent(stderr string) bool {
	return strings.Contains(stderr, "No such container") ||
		strings.Contains(stderr, "is not running")
}
