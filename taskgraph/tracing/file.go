package tracing

import (
	"encoding/binary"
	"os"
)

// WriteFile persists events to path in the original tracing tool's wire
// format: every event's tag as a little-endian int64, concatenated, then
// every event's timestamp as a little-endian int64, concatenated. Readers
// that only care about the tag histogram can mmap just the first half.
func WriteFile(path string, events []Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n := len(events)
	buf := make([]byte, 2*8*n)
	for i, e := range events {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(e.Tag))
	}
	base := 8 * n
	for i, e := range events {
		binary.LittleEndian.PutUint64(buf[base+i*8:], uint64(e.Timestamp))
	}

	_, err = f.Write(buf)
	return err
}
