// Package common contains shared constants, random helpers and the error
// taxonomy used across mailkeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the signed
// session credential on inbound requests.
const AccessTokenHeaderName = "access_token"

// SessionTokenCapacity is the number of concurrent session tokens kept per user.
const SessionTokenCapacity = 10
