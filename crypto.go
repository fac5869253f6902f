package conductor

// Encrypter is the secret-sealing capability consumed by credential and
// asset storage layered on top of this module. Implementations live
// outside it; nothing here ever inspects plaintext.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}
