// Package listen runs the network stub: a gRPC server that only answers the
// standard health checking protocol.
//
// The reported status follows the deployment record. It is SERVING once a
// release has been deployed and NOT_SERVING before that.
package listen
