package server

// Config is the relay server configuration.
type Config struct {
	// Address to listen on (e.g., ":3000")
	ListenAddr string

	// BodyLimit is the maximum accepted request body in bytes, uploads included.
	// Zero uses fiber's default of 4MB.
	BodyLimit int
}
