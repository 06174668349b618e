package ping

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Java Edition "Server List Ping": a handshake with next-state=1 followed
// by an empty status request; the server answers with a JSON status
// payload. Packets are length-prefixed with a VarInt and identified by a
// VarInt packet id.

const (
	javaPacketHandshake = 0x00
	javaPacketStatus    = 0x00
	javaStateStatus     = 1
	// Sent in the handshake to ask the server to answer with its own
	// protocol number.
	javaProtocolAny = -1

	javaMaxPacketLen = 1 << 21
)

type javaStatus struct {
	Version struct {
		Name string `json:"name"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description json.RawMessage `json:"description"`
}

func probeJava(host string, port int, timeout time.Duration) Result {
	start := time.Now()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), timeout)
	if err != nil {
		return Offline()
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(start.Add(timeout))

	if err := writeJavaPacket(conn, handshakePayload(host, port)); err != nil {
		return Offline()
	}
	if err := writeJavaPacket(conn, []byte{javaPacketStatus}); err != nil {
		return Offline()
	}

	payload, err := readJavaPacket(bufio.NewReader(conn))
	if err != nil {
		return Offline()
	}
	latency := time.Since(start)

	body := bytes.NewReader(payload)
	if id, err := readVarInt(body); err != nil || id != javaPacketStatus {
		return Offline()
	}
	raw, err := readJavaString(body)
	if err != nil {
		return Offline()
	}
	var st javaStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return Offline()
	}
	return Result{
		Reachable:     true,
		OnlinePlayers: st.Players.Online,
		MaxPlayers:    st.Players.Max,
		Version:       st.Version.Name,
		MOTD:          stripFormatting(decodeDescription(st.Description)),
		Latency:       latency,
		PingedAt:      time.Now(),
	}
}

// decodeDescription handles both description shapes: a bare JSON string and
// a chat component object with a "text" field.
func decodeDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text  string `json:"text"`
		Extra []struct {
			Text string `json:"text"`
		} `json:"extra"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	out := obj.Text
	for _, e := range obj.Extra {
		out += e.Text
	}
	return out
}

func handshakePayload(host string, port int) []byte {
	var buf bytes.Buffer
	buf.WriteByte(javaPacketHandshake)
	writeVarInt(&buf, javaProtocolAny)
	writeJavaString(&buf, host)
	_ = binary.Write(&buf, binary.BigEndian, uint16(port)) // #nosec G115 -- port validated to 1..65535
	writeVarInt(&buf, javaStateStatus)
	return buf.Bytes()
}

func writeJavaPacket(w io.Writer, payload []byte) error {
	var buf bytes.Buffer
	writeVarInt(&buf, len(payload))
	buf.Write(payload)
	_, err := w.Write(buf.Bytes())
	return err
}

func readJavaPacket(r *bufio.Reader) ([]byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > javaMaxPacketLen {
		return nil, fmt.Errorf("implausible packet length %d", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeJavaString(buf *bytes.Buffer, s string) {
	writeVarInt(buf, len(s))
	buf.WriteString(s)
}

func readJavaString(r io.Reader) (string, error) {
	n, err := readVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n > javaMaxPacketLen {
		return "", fmt.Errorf("implausible string length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// writeVarInt encodes v as the protocol's little-endian base-128 varint of
// the two's-complement 32-bit value.
func writeVarInt(buf *bytes.Buffer, v int) {
	u := uint32(int32(v)) // #nosec G115 -- deliberate two's-complement encoding
	for {
		b := byte(u & 0x7f)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if u == 0 {
			return
		}
	}
}

func readVarInt(r io.Reader) (int, error) {
	var one [1]byte
	var u uint32
	for i := 0; i < 5; i++ {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			return 0, err
		}
		u |= uint32(one[0]&0x7f) << (7 * i)
		if one[0]&0x80 == 0 {
			return int(int32(u)), nil
		}
	}
	return 0, errors.New("varint too long")
}
