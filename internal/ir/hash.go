package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows a later
// algorithm change without colliding with stored hashes.
const (
	DomainDelta    = "geckode/delta/v1"
	DomainSnapshot = "geckode/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DeltaHash computes the content hash of a stamped delta. Two deltas with
// the same (Actor, Seq) and different hashes are a conflict.
//
// A cleared value hashes as "clear": true since canonical JSON has no null.
func DeltaHash(d Delta) (string, error) {
	obj := IRObject{
		"actor":   IRString(d.Actor),
		"seq":     IRInt(d.Seq),
		"lamport": IRInt(d.Lamport),
		"op":      IRString(d.Op),
		"node":    IRString(d.Node),
		"kind":    IRString(d.Kind),
		"name":    IRString(d.Name),
		"target":  IRString(d.Target),
		"var":     IRString(d.Var),
	}
	if IsNull(d.Value) {
		obj["clear"] = IRBool(true)
	} else {
		obj["value"] = d.Value
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("DeltaHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDelta, canonical), nil
}

// MustDeltaHash is like DeltaHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDeltaHash(d Delta) string {
	h, err := DeltaHash(d)
	if err != nil {
		panic(err)
	}
	return h
}

// SnapshotHash hashes an ordered delta log. Replicas holding the same set
// of deltas produce the same hash regardless of arrival order, provided the
// caller passes them in CompareDeltas order.
func SnapshotHash(deltas []Delta) (string, error) {
	hashes := make(IRArray, 0, len(deltas))
	for _, d := range deltas {
		h, err := DeltaHash(d)
		if err != nil {
			return "", err
		}
		hashes = append(hashes, IRString(h))
	}
	canonical, err := MarshalCanonical(hashes)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
