package main

// General API documentation for swaggo. Run swag against ./cmd/omnitensord to
// regenerate docs.
//
// @title           omnitensor-node API
// @version         1.0
// @description     HTTP API for the compute-task scheduler of an OmniTensor node.
//
// @contact.name   omnitensor maintainers
// @contact.url    https://github.com/omnitensor/omnitensor-node
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
