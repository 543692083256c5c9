// Package server
// Author: momentics <momentics@gmail.com>
//
// Single-threaded, non-blocking TCP reactor.
//
// A Server is created with New over an api.Sockets implementation,
// configured through SetOption or functional options, started, and then
// driven by the caller invoking Poll repeatedly. Each pass accepts every
// pending connection before polling the connections that existed when the
// pass began; hangups and error readiness close and remove the connection
// by handle, receive readiness is handed to the configured Handler.
package server
