package presence

// Identity is the verified user identity supplied by the auth layer at
// login. It is immutable for the lifetime of a connection session; the
// public key is an opaque string handed through to clients unchanged.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PublicKey   string `json:"public_key"`
}
