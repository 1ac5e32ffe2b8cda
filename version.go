package oriondb

// version is the library version reported by Version.
const version = "0.2.0"

// Version returns the library version string.
func Version() string { return version }
