// Package client contains the device side of the mirror transport.
//
// GRPCClient implements mirror.Mirror against a remote mirror server. It
// injects the account access token into every call and maps gRPC status
// codes onto the mirror error taxonomy:
//
//   - Unavailable and DeadlineExceeded become common.ErrNetworkUnavailable.
//   - Unauthenticated, PermissionDenied, ResourceExhausted, InvalidArgument,
//     FailedPrecondition and Internal become common.ErrRemoteRejected;
//     authentication failures also match common.ErrorUnauthorized.
//
// The client is safe for concurrent use. All operations honor ctx.
package client
