// Package crypto defines the ODO crypto provider abstraction: uniform key
// materialization and asymmetric encryption operations dispatched to a
// backend selected at construction time.
//
// Encryption follows a two-phase query/fill contract: called with a nil
// output buffer, Encrypt returns the exact ciphertext length (the key's
// modulus size in bytes) without encrypting; called with a sized buffer, it
// performs the encryption. Padding selection is hash-driven: SHA-1 takes the
// legacy OAEP path kept for protocol compatibility, SHA-256 and SHA-384 take
// the OAEP path with explicit mask-generation-function hash selection.
package crypto
