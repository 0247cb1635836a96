// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The liquidtux authors

package hydro

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc8"

	"github.com/liquidctl/liquidtux/pkg/cooling"
)

// Wire format constants.
const (
	reportLength = 64
	// Outbound frames carry a leading report ID byte; some firmware
	// revisions require the 64-byte payload to be offset by it even in
	// control transfers.
	outputLength = reportLength + 1

	writePrefix    = 0x3f
	featureCooling = 0x00 // pump + fan 1 + fan 2
	featureFan3    = 0x03 // fan 3 only, in the fan 1 slot
	cmdGetStatus   = 0xff
	cmdSetCooling  = 0x14

	payloadLength = 60

	pumpModeQuiet    = 0x00
	pumpModeBalanced = 0x01
	pumpModeExtreme  = 0x02

	fanModeCustomProfile = 0x00
	fanModeFixedDuty     = 0x02
	fanModeFixedRPM      = 0x04

	offFan1Mode   = 8
	offFan1Duty   = 13
	offFan2Mode   = 14
	offFan2Duty   = 19
	offPumpMode   = 20
	offProfileLen = 26

	profileLength = 7

	seqMod = 31
)

// Duty and speed offsets in status replies: duty at the base, speed as
// little-endian u16 at base+1.
var fanBases = [maxFans]int{14, 21, 42}

const pumpBase = 28

// SMBus standard CRC-8, polynomial x^8 + x^2 + x + 1.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly: 0x07, Init: 0x00, Check: 0xF4, Name: "CRC-8/SMBUS",
})

// buildFrame constructs one 65-byte outbound report: report ID padding,
// the 0x3f prefix, sequence and feature packed into one byte, the
// command, the payload, and the CRC over bytes 2..63 in the last byte.
func buildFrame(seq uint8, feature, command byte, payload []byte) []byte {
	buf := make([]byte, outputLength)
	buf[1] = writePrefix
	buf[2] = seq<<3 | feature
	buf[3] = command
	copy(buf[4:outputLength-1], payload)
	buf[outputLength-1] = crc8.Checksum(buf[2:outputLength-1], crcTable)
	return buf
}

// checkFrame validates an inbound 64-byte report. Checksumming data and
// CRC together yields zero for an intact report; anything else means
// corruption or a collision with another program using the device.
func checkFrame(data []byte) error {
	if len(data) < reportLength {
		return &cooling.ProtocolError{Reason: "report too short", Size: len(data)}
	}
	if crc8.Checksum(data[1:reportLength], crcTable) != 0 {
		return &cooling.ProtocolError{Reason: "crc mismatch", Size: len(data), Checksum: true}
	}
	return nil
}

// liquidTemp converts the two temperature bytes to millidegrees Celsius:
// an integral part and a fractional part in 1/255ths of a degree.
func liquidTemp(data []byte) int64 {
	return int64(data[8])*1000 + int64(data[7])*1000/255
}

// firmwareVersion formats the three version fields packed into bytes 2
// and 3 of a reply.
func firmwareVersion(data []byte) string {
	return fmt.Sprintf("%d.%d.%d", data[2]>>4, data[2]&0x0f, data[3])
}

func speedAt(data []byte, base int) int64 {
	return int64(binary.LittleEndian.Uint16(data[base+1 : base+3]))
}

func dutyAt(data []byte, base int) int64 {
	return int64(data[base])
}
