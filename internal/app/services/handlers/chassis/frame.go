package chassis

import (
	"encoding/binary"
	"fmt"
)

// SyncWord opens every frame of the chassis wire protocol.
const SyncWord uint32 = 0xA5FF00CC

// MsgType enumerates the request/response message pairs the fixture supports.
type MsgType uint16

const (
	MsgRotateTurntable   MsgType = 0x0001
	MsgGetAngle          MsgType = 0x0002
	MsgWaitForTurntable  MsgType = 0x0003
	MsgActuateCliffDoor  MsgType = 0x0004
	MsgReadEncoderCount  MsgType = 0x0005
)

// StatusCode is the first byte of every response body.
type StatusCode byte

const (
	StatusSuccess         StatusCode = 0
	StatusGeneralFailure  StatusCode = 1
	StatusTimeout         StatusCode = 2
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusGeneralFailure:
		return "GENERAL_FAILURE"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Frame is one [sync][length][msg_type][body][crc16] unit, big-endian.
type Frame struct {
	MsgType MsgType
	Body    []byte
}

// Encode serialises f into the wire format, computing length and CRC16.
func Encode(f Frame) []byte {
	buf := make([]byte, 4+2+2+len(f.Body)+2)
	binary.BigEndian.PutUint32(buf[0:4], SyncWord)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(f.Body)))
	binary.BigEndian.PutUint16(buf[6:8], uint16(f.MsgType))
	copy(buf[8:8+len(f.Body)], f.Body)
	crc := CRC16Kermit(buf[4 : 8+len(f.Body)])
	binary.BigEndian.PutUint16(buf[8+len(f.Body):], crc)
	return buf
}

// Decode parses a complete frame from buf, validating sync word and CRC16.
// It returns the decoded frame and the number of bytes consumed.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < 10 {
		return Frame{}, 0, fmt.Errorf("chassis: short frame (%d bytes)", len(buf))
	}
	sync := binary.BigEndian.Uint32(buf[0:4])
	if sync != SyncWord {
		return Frame{}, 0, fmt.Errorf("chassis: bad sync word 0x%08X", sync)
	}
	length := int(binary.BigEndian.Uint16(buf[4:6]))
	msgType := MsgType(binary.BigEndian.Uint16(buf[6:8]))
	total := 8 + length + 2
	if len(buf) < total {
		return Frame{}, 0, fmt.Errorf("chassis: incomplete frame, need %d bytes have %d", total, len(buf))
	}
	body := buf[8 : 8+length]
	wantCRC := binary.BigEndian.Uint16(buf[8+length : total])
	gotCRC := CRC16Kermit(buf[4 : 8+length])
	if wantCRC != gotCRC {
		return Frame{}, 0, fmt.Errorf("chassis: CRC mismatch (got 0x%04X want 0x%04X)", gotCRC, wantCRC)
	}
	return Frame{MsgType: msgType, Body: body}, total, nil
}

// DecodeStatus extracts the leading status byte from a response body.
func DecodeStatus(body []byte) (StatusCode, []byte, error) {
	if len(body) < 1 {
		return 0, nil, fmt.Errorf("chassis: empty response body")
	}
	return StatusCode(body[0]), body[1:], nil
}
