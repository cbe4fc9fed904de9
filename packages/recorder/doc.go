// Package recorder attaches test results to the request that produced them
// and hands them to a Store.
package recorder
