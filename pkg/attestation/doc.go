// Package attestation implements the anonymous group-signature backend used
// to attest group membership during onboarding without revealing which
// member signed.
//
// A Backend is an explicit context object owned by the caller; nothing is
// kept in package globals. The signing strategy is selected at construction:
//
//   - StrategyPrecomputed: the constrained-MCU variant. The member context
//     is built eagerly at Init and a reusable precomputation blob is
//     produced so later signatures avoid the member setup cost.
//   - StrategyFreshPerSign: the general-purpose variant. A fresh member
//     context is built for every signature, the full revocation list is
//     applied on each call, and the context is discarded after signing.
//
// Signature length grows with the revocation list: each revoked entry adds a
// non-revocation proof to the signature. Signing never suppresses a
// signature for a revoked member; revocation enforcement belongs to the
// verifier.
package attestation
