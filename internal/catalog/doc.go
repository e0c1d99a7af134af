// Package catalog holds the anime and user records shared by the store, the
// resolver and the publish flow, plus the error values they exchange.
package catalog
