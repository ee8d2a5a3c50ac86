// Command launchlock is the operator CLI for the LaunchLock command engine.
//
// It enqueues publish, price update, and withdraw commands, approves dry
// runs, inspects and repairs the command queue, imports source products, and
// runs the worker in the foreground. Every command talks to the SQLite
// database named by the configuration directly; a running daemon picks up new
// commands on its next poll.
package main
