//go:build cgo

package remote

// The libSQL driver is a CGO binding; it only provides Go files when
// cgo is enabled, so its registration import must live behind the same
// constraint.
import _ "github.com/tursodatabase/go-libsql"
