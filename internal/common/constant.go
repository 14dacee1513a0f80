package common

// AuthorizationHeaderName is the HTTP header used to carry the bearer token
// on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is the expected scheme prefix of the Authorization header.
const BearerPrefix = "Bearer "
