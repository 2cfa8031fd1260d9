package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// annexB 拼接带4字节起始码的NAL单元
func annexB(units ...[]byte) []byte {
	var out []byte
	for _, unit := range units {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, unit...)
	}
	return out
}

func TestSplitNALUnits(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1e}
	pps := []byte{0x68, 0xce, 0x38, 0x80}
	idr := []byte{0x65, 0x88, 0x84, 0x00, 0x33, 0xff}

	units, err := SplitNALUnits(annexB(sps, pps, idr))
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, sps, units[0])
	assert.Equal(t, pps, units[1])
	assert.Equal(t, idr, units[2])
}

func TestSplitNALUnits_ShortStartCode(t *testing.T) {
	// 3字节起始码同样是合法的Annex-B
	payload := []byte{0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1e}

	units, err := SplitNALUnits(payload)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, []byte{0x67, 0x42, 0x00, 0x1e}, units[0])
}

func TestSplitNALUnits_EmptyPayload(t *testing.T) {
	// 空载荷不算错误：对应原始实现中EOF即成功的语义
	units, err := SplitNALUnits(nil)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestSplitNALUnits_SingleUnit(t *testing.T) {
	idr := []byte{0x65, 0x88, 0x84}

	units, err := SplitNALUnits(annexB(idr))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, idr, units[0])
}
