// Package base implements Base: the key/value façade bound to one log
// stream. Every mutation is "publish event -> await barrier -> read local
// store -> compact prior log entries for the key".
package base
