package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// PacketSize is the size of one UDP IMU packet.
const PacketSize = 48

var packetMagic = [4]byte{'I', 'M', 'U', '1'}

// ErrBadPacket is returned for payloads that are not IMU packets.
var ErrBadPacket = errors.New("sensor: not an IMU packet")

// Packet is the wire form of a sample streamed over UDP. Layout, little
// endian: magic "IMU1" | seq u32 | time f64 | gyro 3×f32 | accel 3×f32 |
// temperature f32 | reserved u32.
type Packet struct {
	Seq    uint32
	Sample Sample
}

// EncodePacket writes p into a new PacketSize buffer.
func EncodePacket(p Packet) []byte {
	b := make([]byte, PacketSize)
	copy(b[0:4], packetMagic[:])
	binary.LittleEndian.PutUint32(b[4:8], p.Seq)
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(p.Sample.Time))
	putVec32(b[16:28], p.Sample.Gyro)
	putVec32(b[28:40], p.Sample.Accel)
	binary.LittleEndian.PutUint32(b[40:44], math.Float32bits(float32(p.Sample.Temperature)))
	return b
}

// DecodePacket parses a UDP payload.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrBadPacket, len(b))
	}
	if [4]byte(b[0:4]) != packetMagic {
		return Packet{}, fmt.Errorf("%w: magic %q", ErrBadPacket, b[0:4])
	}
	return Packet{
		Seq: binary.LittleEndian.Uint32(b[4:8]),
		Sample: Sample{
			Time:        math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
			Gyro:        vec32(b[16:28]),
			Accel:       vec32(b[28:40]),
			Temperature: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[40:44]))),
		},
	}, nil
}

func putVec32(b []byte, v r3.Vec) {
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(float32(v.Z)))
}

func vec32(b []byte) r3.Vec {
	return r3.Vec{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))),
	}
}
