package domain

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a 64-bit digest over every field that changes how a
// worker behaves. Enabled is excluded since disabled targets never reach a
// worker. Equal fingerprints mean "unchanged"; collisions are accepted.
func (t Target) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte

	_, _ = d.Write(t.ID[:])

	binary.LittleEndian.PutUint32(buf[:4], uint32(t.State))
	_, _ = d.Write(buf[:4])

	writeString(d, buf[:], t.Name)
	writeString(d, buf[:], t.Address)
	writeString(d, buf[:], string(t.Protocol))

	binary.LittleEndian.PutUint32(buf[:4], uint32(t.Interval))
	_, _ = d.Write(buf[:4])

	writeString(d, buf[:], t.Metadata)

	return d.Sum64()
}

// writeString length-prefixes s so that bytes cannot shift between adjacent
// fields without changing the digest.
func writeString(d *xxhash.Digest, buf []byte, s string) {
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(s)))
	_, _ = d.Write(buf[:8])
	_, _ = d.WriteString(s)
}
