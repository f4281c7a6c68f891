// Package policy gates provisioning plans with OPA rego policies: built-in
// rules enforce pinned runtime versions, https plugin sources and profile
// block markers, and file-based policies can layer on top with hot reload.
package policy
