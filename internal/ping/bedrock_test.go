package ping

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPong(statusLine string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(raknetUnconnectedPong)
	_ = binary.Write(&buf, binary.BigEndian, int64(12345)) // time
	_ = binary.Write(&buf, binary.BigEndian, int64(67890)) // server GUID
	buf.Write(raknetMagic)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(statusLine))) // #nosec G115
	buf.WriteString(statusLine)
	return buf.Bytes()
}

func TestParseBedrockPong(t *testing.T) {
	res, ok := parseBedrockPong(buildPong("MCPE;§bPocket World;712;1.21.2;7;40;12345;world;Survival"))
	require.True(t, ok)
	assert.Equal(t, 7, res.OnlinePlayers)
	assert.Equal(t, 40, res.MaxPlayers)
	assert.Equal(t, "1.21.2", res.Version)
	assert.Equal(t, "Pocket World", res.MOTD)
	assert.True(t, res.Reachable)
}

func TestParseBedrockPongRejects(t *testing.T) {
	cases := []struct {
		name string
		pkt  []byte
	}{
		{"empty", nil},
		{"wrong id", append([]byte{0x05}, buildPong("MCPE;x;1;1;0;10")[1:]...)},
		{"truncated", buildPong("MCPE;x;1;1;0;10")[:20]},
		{"not MCPE", buildPong("HTTP;x;1;1;0;10")},
		{"too few fields", buildPong("MCPE;x;1")},
		{"online not numeric", buildPong("MCPE;x;1;1;lots;10")},
		{"bad magic", func() []byte {
			p := buildPong("MCPE;x;1;1;0;10")
			p[20] ^= 0xff
			return p
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := parseBedrockPong(tc.pkt)
			assert.False(t, ok)
		})
	}
}

func TestProbeBedrock(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()

	go func() {
		buf := make([]byte, 2048)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil || n == 0 || buf[0] != raknetUnconnectedPing {
			return
		}
		_, _ = pc.WriteTo(buildPong("MCPE;Pocket;712;1.21.2;2;10"), addr)
	}()

	addr := pc.LocalAddr().(*net.UDPAddr)
	res := probeBedrock(addr.IP.String(), addr.Port, 2*time.Second)
	require.True(t, res.Reachable)
	assert.Equal(t, 2, res.OnlinePlayers)
	assert.Equal(t, 10, res.MaxPlayers)
	assert.Greater(t, res.Latency, time.Duration(0))
}

func TestProbeBedrockTimeout(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()
	// listener never answers

	addr := pc.LocalAddr().(*net.UDPAddr)
	start := time.Now()
	res := probeBedrock(addr.IP.String(), addr.Port, 300*time.Millisecond)
	assert.False(t, res.Reachable)
	assert.Less(t, time.Since(start), 2*time.Second)
}
