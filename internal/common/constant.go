package common

// AuthorizationHeaderName is the gRPC metadata key carrying the access token,
// optionally prefixed with "Bearer ".
const AuthorizationHeaderName = "authorization"

// ForgotPasswordMessage is returned by the forgot-password flow whether or not
// the address belongs to an account.
const ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."
