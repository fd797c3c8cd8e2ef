// Package containers restarts the containers of a compose stack through the
// Docker Engine API and waits for each one to come back.
//
// A container is considered ready when its healthcheck reports healthy, or
// when it is running and defines no healthcheck.
package containers
