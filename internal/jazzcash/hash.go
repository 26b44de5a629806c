package jazzcash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const secureHashField = "pp_SecureHash"

// RequestHash signs an initiation request. The password is both the HMAC key
// and the last element of the message, in this exact field order.
func RequestHash(password, merchantID, txnRef, amount, timestamp, billRef, description, mobile string) string {
	mac := hmac.New(sha256.New, []byte(password))
	for _, part := range []string{merchantID, txnRef, amount, timestamp, billRef, description, mobile, password} {
		mac.Write([]byte(part))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// ResponseHash computes the hash JazzCash attaches to its callbacks: the
// integrity salt followed by every non-empty pp_ value in key order, joined
// with '&'.
func ResponseHash(salt string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if !strings.HasPrefix(k, "pp_") || k == secureHashField || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, salt)
	for _, k := range keys {
		parts = append(parts, fields[k])
	}

	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(strings.Join(parts, "&")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// VerifyResponseHash reports whether fields carry a valid pp_SecureHash.
func VerifyResponseHash(salt string, fields map[string]string) bool {
	got := strings.ToUpper(strings.TrimSpace(fields[secureHashField]))
	if got == "" {
		return false
	}
	want := ResponseHash(salt, fields)
	return hmac.Equal([]byte(got), []byte(want))
}
