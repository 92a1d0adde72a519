// Package deployment implements the gRPC transport of the listener stub.
//
// It maps the deployment record onto the standard grpc.health.v1 service, so
// load balancers and monitoring can tell whether a release is live.
package deployment
