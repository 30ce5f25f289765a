/**
 * @description
 * Data access layer for sellers, catalog products, paid orders and processed
 * webhook events. Two implementations share the same sentinel errors: an
 * in-memory directory used for the demo and tests, and a Postgres directory.
 */
package store

import "errors"

var (
	ErrSellerNotFound  = errors.New("seller not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
)
