// Package config loads typed configuration structs from environment
// variables. A .env file is picked up once per process when present, each
// struct type is parsed at most once, and subsequent loads of the same type
// return the cached copy, so every component can load its own config slice
// without coordinating.
package config
