// Package comment implements reader comments on posts: creation, listing of
// one's own comments, approval and deletion.
//
// Files in this package:
//   - types.go: DTOs, response structs, sentinel errors
//   - service.go: Service struct and all business-logic methods
//   - handler.go: Handler struct, route registration, and HTTP handlers
//   - helpers.go: response mapping and input normalization
package comment
