// Package chassis implements the ChassisRotation handler (C3) and the
// CRC16-Kermit framed serial protocol used to drive the chassis fixture.
// The Driver supports turntable rotation, angle read-back and waiting for the
// turntable; the cliff-sensor door and encoder-count message types are
// defined as constants, but the Driver has no operation that sends them.
// No third-party CRC16 implementation appears anywhere
// in the retrieved reference pack, so this is a deliberate, documented
// standard-library-only component.
package chassis

// crc16KermitTable is precomputed for the polynomial 0x8408 (reversed 0x1021),
// the standard CRC16-Kermit/CCITT (reflected) table.
var crc16KermitTable = func() [256]uint16 {
	var table [256]uint16
	const poly = 0x8408
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc = crc >> 1
			}
		}
		table[i] = crc
	}
	return table
}()

// CRC16Kermit computes the CRC16-Kermit checksum over data, seeded at zero
// per the standard definition.
func CRC16Kermit(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc >> 8) ^ crc16KermitTable[(crc^uint16(b))&0xFF]
	}
	return crc
}
