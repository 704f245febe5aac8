package redact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/receipts/internal/model"
)

// Alias namespaces. The namespace is also the alias prefix.
const (
	NamespaceUser       = "user"
	NamespaceRepo       = "repo"
	NamespaceWorkstream = "workstream"
	NamespaceEvent      = "event"

	// NamespaceWorkstreamID keys re-derived workstream ids, kept apart from
	// workstream title aliases.
	NamespaceWorkstreamID = "workstream_id"
)

// aliasHexLen is how many hex digits of the keyed digest an alias keeps.
const aliasHexLen = 16

// AliasStateVersion tags persisted alias files.
const AliasStateVersion = "receipts.aliases/v1"

// CollisionError reports two distinct values mapping to one alias.
type CollisionError struct {
	Namespace string
	Alias     string
	First     string
	Second    string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("alias collision in %s: %q and %q both map to %s", e.Namespace, e.First, e.Second, e.Alias)
}

type aliasKey struct {
	namespace string
	value     string
}

// AliasTable derives keyed aliases and remembers every mapping it hands out.
// Not safe for concurrent use.
type AliasTable struct {
	key     Key
	hexLen  int
	forward map[aliasKey]string
	reverse map[string]aliasKey
}

// NewAliasTable creates an empty table for key.
func NewAliasTable(key Key) *AliasTable {
	return newAliasTable(key, aliasHexLen)
}

func newAliasTable(key Key, hexLen int) *AliasTable {
	return &AliasTable{
		key:     key,
		hexLen:  hexLen,
		forward: make(map[aliasKey]string),
		reverse: make(map[string]aliasKey),
	}
}

// digest is HMAC-SHA256(key, namespace || 0x00 || NFC(value)) in hex.
func (t *AliasTable) digest(namespace, value string) string {
	mac := hmac.New(sha256.New, t.key.secret)
	mac.Write([]byte(namespace))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Alias returns "<namespace>-<hex>" for value.
func (t *AliasTable) Alias(namespace, value string) (string, error) {
	value = norm.NFC.String(value)
	return t.record(namespace, value, func() string {
		return namespace + "-" + t.digest(namespace, value)[:t.hexLen]
	})
}

// ID returns a full-length keyed id for value, shaped like a content id.
func (t *AliasTable) ID(namespace, value string) (string, error) {
	value = norm.NFC.String(value)
	return t.record(namespace, value, func() string {
		return t.digest(namespace, value)
	})
}

func (t *AliasTable) record(namespace, value string, derive func() string) (string, error) {
	k := aliasKey{namespace, value}
	if a, ok := t.forward[k]; ok {
		return a, nil
	}
	a := derive()
	if prev, ok := t.reverse[a]; ok && prev != k {
		return "", &CollisionError{Namespace: namespace, Alias: a, First: prev.value, Second: value}
	}
	t.forward[k] = a
	t.reverse[a] = k
	return a, nil
}

// values returns the recorded values of namespace mapped to their aliases.
func (t *AliasTable) values(namespace string) map[string]string {
	out := make(map[string]string)
	for k, a := range t.forward {
		if k.namespace == namespace {
			out[k.value] = a
		}
	}
	return out
}

// Len returns the number of recorded mappings.
func (t *AliasTable) Len() int { return len(t.forward) }

// AliasEntry is one recorded mapping.
type AliasEntry struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
	Alias     string `json:"alias"`
}

// AliasState is the mapping in force for one profile of one run.
// It identifies the key by fingerprint only.
type AliasState struct {
	Profile        model.Profile `json:"profile"`
	KeySource      KeySource     `json:"key_source"`
	KeyFingerprint string        `json:"key_fingerprint"`
	Entries        []AliasEntry  `json:"entries"`
}

// AliasFile is the persisted form of every profile's AliasState for a run.
type AliasFile struct {
	Version  string       `json:"version"`
	RunID    string       `json:"run_id"`
	Profiles []AliasState `json:"profiles"`
}

// state snapshots t, sorted by namespace then value.
func (t *AliasTable) state(profile model.Profile) AliasState {
	entries := make([]AliasEntry, 0, len(t.forward))
	for k, a := range t.forward {
		entries = append(entries, AliasEntry{Namespace: k.namespace, Value: k.value, Alias: a})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Namespace != entries[j].Namespace {
			return entries[i].Namespace < entries[j].Namespace
		}
		return entries[i].Value < entries[j].Value
	})
	return AliasState{
		Profile:        profile,
		KeySource:      t.key.Source,
		KeyFingerprint: t.key.Fingerprint(),
		Entries:        entries,
	}
}
