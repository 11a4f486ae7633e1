package gateway

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Secrets holds the cashdesk credentials shared with the gateway.
type Secrets struct {
	Hash        string
	CashierPass string
	CashdeskID  int
}

// Signer derives the per-request authentication material the gateway expects.
// The field order and the hash chosen at every step are fixed by the gateway's
// verification logic; any deviation makes the call fail with an auth error.
type Signer struct {
	secrets Secrets
}

func NewSigner(secrets Secrets) *Signer {
	return &Signer{secrets: secrets}
}

// ConfirmToken builds the lightweight request-integrity token: the digest of
// the semantic parameter joined with the shared secret.
func (s *Signer) ConfirmToken(value string) string {
	return md5hex(value + ":" + s.secrets.Hash)
}

// BalanceSignature signs a cashdesk balance query. dt must already be in the
// gateway's `2006.01.02 15:04:05` UTC format.
func (s *Signer) BalanceSignature(dt string) string {
	a := fmt.Sprintf("hash=%s&cashierpass=%s&dt=%s", s.secrets.Hash, s.secrets.CashierPass, dt)
	b := fmt.Sprintf("dt=%s&cashierpass=%s&cashdeskid=%d", dt, s.secrets.CashierPass, s.secrets.CashdeskID)

	return layered(a, b)
}

// FindUserSignature signs a player lookup.
func (s *Signer) FindUserSignature(userID int64) string {
	a := fmt.Sprintf("hash=%s&userid=%d&cashdeskid=%d", s.secrets.Hash, userID, s.secrets.CashdeskID)
	b := fmt.Sprintf("userid=%d&cashierpass=%s&hash=%s", userID, s.secrets.CashierPass, s.secrets.Hash)

	return layered(a, b)
}

// DepositSignature signs a deposit. amount must be formatted exactly as it is
// sent in the request body.
func (s *Signer) DepositSignature(userID int64, amount, lng string) string {
	a := fmt.Sprintf("hash=%s&lng=%s&UserId=%d", s.secrets.Hash, lng, userID)
	b := fmt.Sprintf("summa=%s&cashierpass=%s&cashdeskid=%d", amount, s.secrets.CashierPass, s.secrets.CashdeskID)

	return layered(a, b)
}

// PayoutSignature signs a payout redeeming the given code.
func (s *Signer) PayoutSignature(userID int64, code, lng string) string {
	a := fmt.Sprintf("hash=%s&lng=%s&UserId=%d", s.secrets.Hash, lng, userID)
	b := fmt.Sprintf("code=%s&cashierpass=%s&cashdeskid=%d", code, s.secrets.CashierPass, s.secrets.CashdeskID)

	return layered(a, b)
}

// layered is the gateway's two-step scheme: the primary field set is digested
// with SHA-256, the secondary with MD5 (kept for compatibility with the
// gateway's legacy verification), and the two hex strings are digested again.
func layered(a, b string) string {
	return sha256hex(sha256hex(a) + md5hex(b))
}

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
