// Package security builds the static security posture report exposed by
// Engine.SecurityReport. It inspects configuration only and performs no
// I/O.
package security
