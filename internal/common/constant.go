package common

// AuthorizationHeaderName is the gRPC metadata key that carries the portal
// session bearer token.
const AuthorizationHeaderName = "authorization"

// BearerPrefix prefixes bearer credentials in the authorization header.
const BearerPrefix = "Bearer "
