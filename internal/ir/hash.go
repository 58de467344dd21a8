package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRule  = "slotted/rule/v1"
	DomainMatch = "slotted/match/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RuleHash identifies a rewrite rule by its name and printed sides.
func RuleHash(name, lhs, rhs string) string {
	return hashWithDomain(DomainRule, []byte(name+"\x00"+lhs+"\x00"+rhs))
}

// MatchHash identifies one match of a rule: the rule, the root occurrence,
// the bindings of every pattern variable and the pattern slot bindings.
// Variable names are sorted so the hash does not depend on map order.
func MatchHash(ruleHash string, root AppliedID, vars map[string]AppliedID, slots SlotMap) string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	b.WriteString(ruleHash)
	b.WriteByte(0)
	b.WriteString(root.String())
	for _, name := range names {
		b.WriteByte(0)
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(vars[name].String())
	}
	b.WriteByte(0)
	b.WriteString(slots.String())
	return hashWithDomain(DomainMatch, []byte(b.String()))
}
