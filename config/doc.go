// Package config holds the explicit configuration of a docket cache.
//
// Values come from three layers, later layers winning:
//
//  1. Default, which mirrors the stock group lists and places the store
//     under the user cache directory.
//  2. An optional YAML file.
//  3. Environment variables prefixed with DOCKET_CACHE_.
//
// Paths then go through strict ${VAR} expansion and the result is validated.
package config
