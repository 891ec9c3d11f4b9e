package mlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Frame layout: [Length:4][Type:1][Payload:N][CRC32:4], little-endian.
// Length counts the type byte plus the payload, so it is at least 1 and a
// zero length unambiguously marks the end of the written region (segments
// are zero-filled). The CRC covers length, type and payload.
const (
	frameLenSize   = 4
	frameCRCSize   = 4
	frameOverhead  = frameLenSize + 1 + frameCRCSize
	maxPayloadSize = int64(1<<32 - 2) // Length is uint32 and includes the type byte.
)

// frameSize returns the total on-disk size of a frame for payloadLen bytes.
func frameSize(payloadLen int) int64 {
	return int64(frameOverhead + payloadLen)
}

// encodeFrame writes a full frame for (typ, payload) into buf, which must be
// at least frameSize(len(payload)) long. It returns the frame length.
func encodeFrame(buf []byte, typ uint8, payload []byte) int64 {
	length := uint32(len(payload)) + 1

	binary.LittleEndian.PutUint32(buf[0:frameLenSize], length)
	buf[frameLenSize] = typ
	copy(buf[frameLenSize+1:], payload)

	body := frameLenSize + 1 + len(payload)
	crc := crc32.ChecksumIEEE(buf[:body])
	binary.LittleEndian.PutUint32(buf[body:], crc)

	return int64(body + frameCRCSize)
}

// decodeResult classifies the bytes at a scan position.
type decodeResult int

const (
	decodeOK decodeResult = iota
	decodeEnd
	decodeCorrupt
)

// decodeFrame reads the frame starting at data[0]. On decodeOK it returns the
// record and the total frame length. On decodeEnd the position is a clean
// zero tail. On decodeCorrupt the reason describes the failure; a partial
// tail that is not all zeros counts as corruption.
func decodeFrame(data []byte) (rec Record, n int64, res decodeResult, reason string) {
	if len(data) == 0 {
		return Record{}, 0, decodeEnd, ""
	}
	if len(data) < frameLenSize {
		if allZero(data) {
			return Record{}, 0, decodeEnd, ""
		}
		return Record{}, 0, decodeCorrupt, "truncated frame header"
	}

	length := binary.LittleEndian.Uint32(data[0:frameLenSize])
	if length == 0 {
		if allZero(data) {
			return Record{}, 0, decodeEnd, ""
		}
		return Record{}, 0, decodeCorrupt, "garbled tail after end of records"
	}

	end := frameLenSize + int(length) + frameCRCSize
	if end > len(data) {
		if allZero(data[frameLenSize:]) {
			// A length prefix with nothing behind it: the crash hit between
			// the length write and the rest of the frame.
			return Record{}, 0, decodeCorrupt, "frame length without body"
		}
		return Record{}, 0, decodeCorrupt, "frame extends past segment end"
	}

	body := frameLenSize + int(length)
	want := binary.LittleEndian.Uint32(data[body:end])
	if got := crc32.ChecksumIEEE(data[:body]); got != want {
		return Record{}, 0, decodeCorrupt, "checksum mismatch"
	}

	return Record{
		Type:    data[frameLenSize],
		Payload: data[frameLenSize+1 : body],
	}, int64(end), decodeOK, ""
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
