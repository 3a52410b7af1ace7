package transport

import (
	"fmt"

	"github.com/pion/randutil"
)

// HostID is the PeerID of the session host, on every participant.
const HostID = 1

// IDSource produces candidate PeerIDs.
type IDSource interface {
	Uint32() uint32
}

// NewRandomIDSource ...
func NewRandomIDSource() IDSource {
	return randutil.NewMathRandomGenerator()
}

// TranslationTable is a bijection between PeerUUIDs and integer PeerIDs.
// HostID is reserved for the host; every other id is a distinct random
// positive integer.
type TranslationTable struct {
	toID   map[string]int
	toUUID map[int]string
	source IDSource
}

// NewTranslationTable ...
func NewTranslationTable(source IDSource) *TranslationTable {
	return &TranslationTable{
		toID:   make(map[string]int),
		toUUID: make(map[int]string),
		source: source,
	}
}

// Assign returns the PeerID of uuid, choosing one if uuid is new.
func (t *TranslationTable) Assign(uuid string, host bool) (int, error) {
	if id, ok := t.toID[uuid]; ok {
		if host != (id == HostID) {
			return 0, fmt.Errorf("%s already mapped to %d", uuid, id)
		}
		return id, nil
	}

	var id int
	if host {
		if other, ok := t.toUUID[HostID]; ok {
			return 0, fmt.Errorf("host id already taken by %s", other)
		}
		id = HostID
	} else {
		id = t.nextID()
	}

	t.toID[uuid] = id
	t.toUUID[id] = uuid

	return id, nil
}

// nextID draws until it finds a positive id that is neither reserved nor in
// use.
func (t *TranslationTable) nextID() int {
	for {
		id := int(t.source.Uint32() & 0x7fffffff)
		if id <= HostID {
			continue
		}
		if _, taken := t.toUUID[id]; taken {
			continue
		}
		return id
	}
}

// ID ...
func (t *TranslationTable) ID(uuid string) (int, bool) {
	id, ok := t.toID[uuid]
	return id, ok
}

// UUID ...
func (t *TranslationTable) UUID(id int) (string, bool) {
	uuid, ok := t.toUUID[id]
	return uuid, ok
}

// Remove deletes the entry of uuid, if any.
func (t *TranslationTable) Remove(uuid string) {
	if id, ok := t.toID[uuid]; ok {
		delete(t.toUUID, id)
		delete(t.toID, uuid)
	}
}

// Len ...
func (t *TranslationTable) Len() int {
	return len(t.toID)
}
