// Package model defines the core domain types for portalmod: roles, ban
// scopes and states, ban durations and the moderated user record.
package model
