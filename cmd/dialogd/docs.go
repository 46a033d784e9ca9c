package main

// General API documentation for swaggo. Run `swag init -g cmd/dialogd/docs.go` to generate docs.
//
// @title           dialogd API
// @version         1.0
// @description     Multi-turn text generation over a single stateful inference engine.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
