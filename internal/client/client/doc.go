// Package client talks to the calsync daemon over gRPC.
//
// GRPCClient wraps the calsync.v1.CalendarSync service. It attaches the portal
// session token to every call and maps gRPC status codes to the sentinel
// errors ErrUnavailable, ErrUnauthorized, ErrForbidden and ErrNotFound so
// callers can match them with errors.Is. Other failures keep the server's
// message.
package client
