package ping

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"
)

// Bedrock Edition status uses RakNet's unconnected ping: one UDP datagram
// carrying the offline-message magic, answered with an unconnected pong
// whose server-id string is a semicolon-separated status line:
//
//	MCPE;<motd>;<protocol>;<version>;<online>;<max>;...
const (
	raknetUnconnectedPing = 0x01
	raknetUnconnectedPong = 0x1c
)

var raknetMagic = []byte{
	0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
}

func probeBedrock(host string, port int, timeout time.Duration) Result {
	start := time.Now()
	conn, err := net.DialTimeout("udp", fmt.Sprintf("%s:%d", host, port), timeout)
	if err != nil {
		return Offline()
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(start.Add(timeout))

	var buf bytes.Buffer
	buf.WriteByte(raknetUnconnectedPing)
	_ = binary.Write(&buf, binary.BigEndian, time.Now().UnixMilli())
	buf.Write(raknetMagic)
	_ = binary.Write(&buf, binary.BigEndian, rand.Int63()) // #nosec G404 -- client GUID, not security sensitive
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return Offline()
	}

	resp := make([]byte, 2048)
	n, err := conn.Read(resp)
	if err != nil {
		return Offline()
	}
	latency := time.Since(start)

	res, ok := parseBedrockPong(resp[:n])
	if !ok {
		return Offline()
	}
	res.Latency = latency
	return res
}

func parseBedrockPong(pkt []byte) (Result, bool) {
	// id(1) + time(8) + serverGUID(8) + magic(16) + strlen(2) + string
	const header = 1 + 8 + 8 + 16 + 2
	if len(pkt) < header || pkt[0] != raknetUnconnectedPong {
		return Result{}, false
	}
	if !bytes.Equal(pkt[17:33], raknetMagic) {
		return Result{}, false
	}
	strLen := int(binary.BigEndian.Uint16(pkt[33:35]))
	if len(pkt) < header+strLen {
		return Result{}, false
	}
	fields := strings.Split(string(pkt[header:header+strLen]), ";")
	if len(fields) < 6 || fields[0] != "MCPE" {
		return Result{}, false
	}
	online, err := strconv.Atoi(fields[4])
	if err != nil {
		return Result{}, false
	}
	maxPlayers, err := strconv.Atoi(fields[5])
	if err != nil {
		return Result{}, false
	}
	return Result{
		Reachable:     true,
		OnlinePlayers: online,
		MaxPlayers:    maxPlayers,
		Version:       fields[3],
		MOTD:          stripFormatting(fields[1]),
		PingedAt:      time.Now(),
	}, true
}
