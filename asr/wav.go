package asr

import "bytes"

// EncodeWAV converts float32 PCM samples to a 16-bit mono WAV payload.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)                   // chunk size
	writeUint16LE(buf, 1)                    // PCM
	writeUint16LE(buf, 1)                    // mono
	writeUint32LE(buf, uint32(sampleRate))   // sample rate
	writeUint32LE(buf, uint32(sampleRate*2)) // byte rate
	writeUint16LE(buf, 2)                    // block align
	writeUint16LE(buf, 16)                   // bits per sample

	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataSize))

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		writeInt16LE(buf, int16(s*32767))
	}

	return buf.Bytes()
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func writeUint16LE(buf *bytes.Buffer, v uint16) {
	buf.Write([]byte{byte(v), byte(v >> 8)})
}

func writeInt16LE(buf *bytes.Buffer, v int16) {
	writeUint16LE(buf, uint16(v))
}
